// Package nlu turns raw sequence-classifier output into an intent and a list
// of labeled entity spans.
//
// The model itself lives behind the Model interface; this package only
// consumes its already computed scores (argmax per token and for the intent)
// and the label lookup tables produced alongside the training dataset.
package nlu

import (
	"context"
	"errors"
)

var (
	// ErrShapeMismatch is returned when the token and label sequences differ in length.
	ErrShapeMismatch = errors.New("token and label sequences differ in length")

	// ErrUnknownLabel is returned when a class id has no entry in its lookup table.
	ErrUnknownLabel = errors.New("class id not in label table")

	// ErrEmptyScores is returned when an argmax is requested over no scores.
	ErrEmptyScores = errors.New("empty score vector")
)

// Entity is a labeled, contiguous span of prompt tokens.
// Start and End are inclusive token positions within the padded window.
type Entity struct {
	Label string `json:"label"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Classification is the result of classifying a single prompt.
type Classification struct {
	Intent   string   `json:"intent"`
	Entities []Entity `json:"entities"`
}

// Detokenizer turns a run of token ids back into surface text.
type Detokenizer interface {
	Detokenize(ctx context.Context, ids []int) (string, error)
}

// DetokenizerFunc adapts a function to the Detokenizer interface.
type DetokenizerFunc func(ctx context.Context, ids []int) (string, error)

// Detokenize calls f(ctx, ids).
func (f DetokenizerFunc) Detokenize(ctx context.Context, ids []int) (string, error) {
	return f(ctx, ids)
}

// Output is the raw result of running the model over one prompt.
// EntityScores holds one score vector per position of InputIDs;
// IntentScores holds one score per intent class.
type Output struct {
	InputIDs     []int       `json:"input_ids"`
	EntityScores [][]float64 `json:"entity_scores"`
	IntentScores []float64   `json:"intent_scores"`
}

// Model is the external sequence classifier.
type Model interface {
	Detokenizer
	// Infer tokenizes text into a window of maxLen tokens and scores it.
	Infer(ctx context.Context, text string, maxLen int) (*Output, error)
}
