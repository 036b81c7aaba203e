package nlu

import (
	"context"
	"fmt"
)

// Argmax returns the index of the highest score. Ties resolve to the lowest index.
func Argmax(scores []float64) (int, error) {
	if len(scores) == 0 {
		return 0, ErrEmptyScores
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best, nil
}

// Classifier runs the model over a prompt and decodes its output.
type Classifier struct {
	model    Model
	intents  LabelVocab
	entities LabelVocab
	maxLen   int
	decoder  Decoder
}

// NewClassifier creates a Classifier. maxLen is the padded window length the
// model was trained with (PROMPT_PADDING).
func NewClassifier(model Model, intents, entities LabelVocab, maxLen int) *Classifier {
	return &Classifier{
		model:    model,
		intents:  intents,
		entities: entities,
		maxLen:   maxLen,
	}
}

// Classify returns the intent and entities for prompt.
func (c *Classifier) Classify(ctx context.Context, prompt string) (Classification, error) {
	out, err := c.model.Infer(ctx, prompt, c.maxLen)
	if err != nil {
		return Classification{}, fmt.Errorf("model inference: %w", err)
	}
	return c.Interpret(ctx, out)
}

// Interpret decodes an already computed model output.
func (c *Classifier) Interpret(ctx context.Context, out *Output) (Classification, error) {
	if out == nil {
		return Classification{}, fmt.Errorf("model returned no output")
	}

	intentID, err := Argmax(out.IntentScores)
	if err != nil {
		return Classification{}, fmt.Errorf("intent scores: %w", err)
	}
	intent, err := c.intents.Lookup(intentID)
	if err != nil {
		return Classification{}, fmt.Errorf("intent: %w", err)
	}

	labels := make([]int, len(out.EntityScores))
	for i, scores := range out.EntityScores {
		if labels[i], err = Argmax(scores); err != nil {
			return Classification{}, fmt.Errorf("entity scores at position %d: %w", i, err)
		}
	}

	entities, err := c.decoder.Decode(ctx, out.InputIDs, labels, c.entities, c.model)
	if err != nil {
		return Classification{}, fmt.Errorf("decode entities: %w", err)
	}

	return Classification{Intent: intent, Entities: entities}, nil
}
