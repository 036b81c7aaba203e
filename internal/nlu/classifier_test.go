package nlu

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	out    *Output
	err    error
	maxLen int
}

func (m *fakeModel) Infer(_ context.Context, _ string, maxLen int) (*Output, error) {
	m.maxLen = maxLen
	return m.out, m.err
}

func (m *fakeModel) Detokenize(ctx context.Context, ids []int) (string, error) {
	return joinDetok(ctx, ids)
}

func onehot(n, hot int) []float64 {
	v := make([]float64, n)
	v[hot] = 0.9
	return v
}

func TestArgmax(t *testing.T) {
	i, err := Argmax([]float64{0.1, 0.7, 0.2})
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	i, err = Argmax([]float64{0.5, 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0, i, "ties resolve to the lowest index")

	_, err = Argmax(nil)
	assert.ErrorIs(t, err, ErrEmptyScores)
}

func TestClassifierClassify(t *testing.T) {
	intents := LabelVocab{0: "get_date", 1: "get_time"}
	model := &fakeModel{out: &Output{
		InputIDs:     []int{101, 7, 8, 102},
		EntityScores: [][]float64{onehot(6, 0), onehot(6, 5), onehot(6, 5), onehot(6, 0)},
		IntentScores: []float64{0.2, 0.8},
	}}

	c := NewClassifier(model, intents, testVocab, 4)
	got, err := c.Classify(context.Background(), "what is the date on t7 t8")
	require.NoError(t, err)

	assert.Equal(t, 4, model.maxLen)
	assert.Equal(t, "get_time", got.Intent)
	assert.Equal(t, []Entity{{Label: "date", Text: "t7 t8", Start: 1, End: 2}}, got.Entities)
}

func TestClassifierErrors(t *testing.T) {
	intents := LabelVocab{0: "get_time"}

	t.Run("model failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		c := NewClassifier(&fakeModel{err: boom}, intents, testVocab, 4)
		_, err := c.Classify(context.Background(), "hi")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("unknown intent id", func(t *testing.T) {
		c := NewClassifier(&fakeModel{out: &Output{IntentScores: []float64{0, 1}}}, intents, testVocab, 4)
		_, err := c.Classify(context.Background(), "hi")
		assert.ErrorIs(t, err, ErrUnknownLabel)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		c := NewClassifier(&fakeModel{out: &Output{
			InputIDs:     []int{1, 2, 3},
			EntityScores: [][]float64{onehot(6, 0)},
			IntentScores: []float64{1},
		}}, intents, testVocab, 4)
		_, err := c.Classify(context.Background(), "hi")
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("empty token scores", func(t *testing.T) {
		c := NewClassifier(&fakeModel{out: &Output{
			InputIDs:     []int{1},
			EntityScores: [][]float64{{}},
			IntentScores: []float64{1},
		}}, intents, testVocab, 4)
		_, err := c.Classify(context.Background(), "hi")
		assert.ErrorIs(t, err, ErrEmptyScores)
	})
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entity_labels.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"0": "none", "1": "date", "2": "time"}`), 0644))

	vocab, err := LoadLabels(path)
	require.NoError(t, err)
	name, err := vocab.Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, "time", name)

	_, err = vocab.Lookup(9)
	assert.ErrorIs(t, err, ErrUnknownLabel)
}

func TestParseLabelsRejectsBadKeys(t *testing.T) {
	for _, body := range []string{`{"zero": "none"}`, `{"-1": "none"}`, `{}`, `[]`} {
		if _, err := ParseLabels([]byte(body)); err == nil {
			t.Errorf("ParseLabels(%s) succeeded, want error", body)
		}
	}
}
