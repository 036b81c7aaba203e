package nlu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = LabelVocab{0: "none", 3: "time", 5: "date"}

// joinDetok renders token ids as "t<id>" joined by spaces.
var joinDetok = DetokenizerFunc(func(_ context.Context, ids []int) (string, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("t%d", id)
	}
	return strings.Join(parts, " "), nil
})

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		labels []int
		want   []Entity
	}{
		{
			name:   "runs separated by no-entity",
			labels: []int{0, 5, 5, 0, 3, 0},
			want: []Entity{
				{Label: "date", Text: "t1 t2", Start: 1, End: 2},
				{Label: "time", Text: "t4", Start: 4, End: 4},
			},
		},
		{
			name:   "trailing run is omitted",
			labels: []int{0, 5, 5},
			want:   []Entity{},
		},
		{
			name:   "only the closed run survives when a trailing run follows",
			labels: []int{5, 0, 5, 5},
			want: []Entity{
				{Label: "date", Text: "t0", Start: 0, End: 0},
			},
		},
		{
			name:   "adjacent different labels split",
			labels: []int{5, 3, 0},
			want: []Entity{
				{Label: "date", Text: "t0", Start: 0, End: 0},
				{Label: "time", Text: "t1", Start: 1, End: 1},
			},
		},
		{
			name:   "same label without gap merges",
			labels: []int{0, 5, 5, 5, 0},
			want: []Entity{
				{Label: "date", Text: "t1 t2 t3", Start: 1, End: 3},
			},
		},
		{
			name:   "all no-entity",
			labels: []int{0, 0, 0, 0},
			want:   []Entity{},
		},
		{
			name:   "empty window",
			labels: []int{},
			want:   []Entity{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(context.Background(), seq(len(tt.labels)), tt.labels, testVocab, joinDetok)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeUsesTokenIDs(t *testing.T) {
	tokens := []int{101, 2054, 2051, 102}
	got, err := Decode(context.Background(), tokens, []int{0, 3, 3, 0}, testVocab, joinDetok)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t2054 t2051", got[0].Text)
}

func TestDecodeFlushTrailingRun(t *testing.T) {
	d := Decoder{FlushTrailingRun: true}
	got, err := d.Decode(context.Background(), seq(3), []int{0, 5, 5}, testVocab, joinDetok)
	require.NoError(t, err)
	assert.Equal(t, []Entity{{Label: "date", Text: "t1 t2", Start: 1, End: 2}}, got)
}

func TestDecodeShapeMismatch(t *testing.T) {
	got, err := Decode(context.Background(), seq(4), []int{0, 5, 0}, testVocab, joinDetok)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Nil(t, got)
}

func TestDecodeUnknownLabel(t *testing.T) {
	got, err := Decode(context.Background(), seq(3), []int{7, 0, 0}, testVocab, joinDetok)
	assert.ErrorIs(t, err, ErrUnknownLabel)
	assert.Nil(t, got)

	got, err = Decode(context.Background(), seq(2), []int{0, -1}, testVocab, joinDetok)
	assert.ErrorIs(t, err, ErrUnknownLabel)
	assert.Nil(t, got)
}

func TestDecodeDetokenizerFailure(t *testing.T) {
	boom := errors.New("tokenizer offline")
	failing := DetokenizerFunc(func(context.Context, []int) (string, error) { return "", boom })

	got, err := Decode(context.Background(), seq(3), []int{5, 0, 0}, testVocab, failing)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}
