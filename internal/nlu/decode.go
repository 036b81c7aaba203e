package nlu

import (
	"context"
	"fmt"
)

const (
	// NoEntityLabel is the label id of tokens outside any entity.
	NoEntityLabel = 0

	// noRun marks that no entity run is open. It can never equal a real label id.
	noRun = -1
)

// Decoder groups per-token label ids into entity spans.
//
// Grouping is by label identity, not by begin/inside tags: adjacent tokens with
// the same label id form one entity, so two same-labeled entities with no
// no-entity token between them merge into one.
//
// A run that is still open at the final position is dropped unless
// FlushTrailingRun is set (trailing-run omission). The zero value drops it.
type Decoder struct {
	FlushTrailingRun bool
}

// Decode is Decoder{}.Decode.
func Decode(ctx context.Context, tokens, labels []int, vocab LabelVocab, detok Detokenizer) ([]Entity, error) {
	return Decoder{}.Decode(ctx, tokens, labels, vocab, detok)
}

// Decode converts parallel token/label sequences into ordered entities.
// It never returns a partial result: any error yields a nil slice.
func (d Decoder) Decode(ctx context.Context, tokens, labels []int, vocab LabelVocab, detok Detokenizer) ([]Entity, error) {
	if len(tokens) != len(labels) {
		return nil, fmt.Errorf("%w: %d tokens, %d labels", ErrShapeMismatch, len(tokens), len(labels))
	}

	entities := make([]Entity, 0)
	current := noRun
	start := 0
	var run []int

	closeRun := func(end int) error {
		name, err := vocab.Lookup(current)
		if err != nil {
			return err
		}
		text, err := detok.Detokenize(ctx, run)
		if err != nil {
			return fmt.Errorf("detokenize tokens %d..%d: %w", start, end, err)
		}
		entities = append(entities, Entity{Label: name, Text: text, Start: start, End: end})
		current = noRun
		run = nil
		return nil
	}

	for i, label := range labels {
		if label < 0 {
			return nil, fmt.Errorf("%w: %d at position %d", ErrUnknownLabel, label, i)
		}

		if label == current {
			run = append(run, tokens[i])
			continue
		}

		if current != noRun {
			if err := closeRun(i - 1); err != nil {
				return nil, err
			}
		}

		if label != NoEntityLabel {
			current = label
			start = i
			run = []int{tokens[i]}
		}
	}

	if d.FlushTrailingRun && current != noRun {
		if err := closeRun(len(labels) - 1); err != nil {
			return nil, err
		}
	}

	return entities, nil
}
