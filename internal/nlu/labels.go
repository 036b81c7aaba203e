package nlu

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// LabelVocab maps a class id to its human-readable name.
type LabelVocab map[int]string

// Lookup returns the name for id.
func (v LabelVocab) Lookup(id int) (string, error) {
	name, ok := v[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownLabel, id)
	}
	return name, nil
}

// ParseLabels decodes a lookup table keyed by stringified class id,
// e.g. {"0": "none", "1": "date"}.
func ParseLabels(data []byte) (LabelVocab, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode label table: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("label table is empty")
	}

	vocab := make(LabelVocab, len(raw))
	for key, name := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("label table key %q is not an integer class id", key)
		}
		if id < 0 {
			return nil, fmt.Errorf("label table key %q is negative", key)
		}
		vocab[id] = name
	}
	return vocab, nil
}

// LoadLabels reads a lookup table from path.
func LoadLabels(path string) (LabelVocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label table: %w", err)
	}
	vocab, err := ParseLabels(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vocab, nil
}
