package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/aurras/internal/protocol"
)

var noop = HandlerFunc(func(ctx context.Context, req *protocol.Request) ([]byte, error) {
	return []byte(`{"response":""}`), nil
})

func desc(name string, prio int, intents ...string) *Descriptor {
	return &Descriptor{Name: name, Priority: prio, AcceptedIntents: intents, Handler: noop}
}

func names(ds []*Descriptor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Name)
	}
	return out
}

func TestRegistryCandidatesOrdering(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(desc("A", 5, "greet")))
	require.NoError(t, r.Add(desc("B", 0, "greet", "bye")))
	require.NoError(t, r.Add(desc("C", 5, "greet")))
	require.NoError(t, r.Add(desc("D", -1, "bye")))

	assert.Equal(t, []string{"B", "A", "C"}, names(r.Candidates("greet")))
	assert.Equal(t, []string{"D", "B"}, names(r.Candidates("bye")))
	assert.Empty(t, r.Candidates("weather"))
	assert.Equal(t, []string{"bye", "greet"}, r.Intents())
	assert.Equal(t, []string{"A", "B", "C", "D"}, names(r.All()))
	assert.Equal(t, 2, r.All()[2].LoadOrder())
}

func TestRegistryCandidatesReadOnly(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(desc("A", 1, "greet")))
	require.NoError(t, r.Add(desc("B", 2, "greet")))

	c := r.Candidates("greet")
	_ = append(c, desc("X", 0, "greet"))
	assert.Equal(t, []string{"A", "B"}, names(r.Candidates("greet")))
}

func TestRegistryAddRejects(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(desc("A", 1, "greet")))

	err := r.Add(desc("A", 2, "bye"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicatePlugin))
	assert.Empty(t, r.Candidates("bye"), "rejected plugin must not be indexed")

	var le *LoadError
	assert.ErrorAs(t, r.Add(desc("", 1, "greet")), &le)
	assert.ErrorAs(t, r.Add(desc("E", 1)), &le)
	assert.ErrorAs(t, r.Add(&Descriptor{Name: "H", AcceptedIntents: []string{"x"}}), &le)
	assert.Error(t, r.Add(nil))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryAddIndexesRepeatedIntentOnce(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(desc("A", 0, "get_time", "get_time", "get_date")))
	require.NoError(t, r.Add(desc("B", 1, "get_time")))

	assert.Equal(t, []string{"A", "B"}, names(r.Candidates("get_time")))
	assert.Equal(t, []string{"A"}, names(r.Candidates("get_date")))
	assert.Equal(t, []string{"get_time", "get_date"}, r.All()[0].AcceptedIntents)
}
