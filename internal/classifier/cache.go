package classifier

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mattjoyce/aurras/internal/nlu"
)

type cacheKey struct {
	text   string
	maxLen int
}

// CachedModel memoizes inference results per prompt. Detokenization is
// passed through. Cached outputs are shared and must not be mutated.
type CachedModel struct {
	nlu.Model
	cache *lru.Cache[cacheKey, *nlu.Output]
}

// NewCachedModel wraps m with an LRU of the given size. A size of zero or less
// disables caching and returns m unchanged.
func NewCachedModel(m nlu.Model, size int) (nlu.Model, error) {
	if size <= 0 {
		return m, nil
	}
	cache, err := lru.New[cacheKey, *nlu.Output](size)
	if err != nil {
		return nil, fmt.Errorf("create classification cache: %w", err)
	}
	return &CachedModel{Model: m, cache: cache}, nil
}

// Infer returns a cached output when the same prompt was seen before.
func (c *CachedModel) Infer(ctx context.Context, text string, maxLen int) (*nlu.Output, error) {
	key := cacheKey{text: text, maxLen: maxLen}
	if out, ok := c.cache.Get(key); ok {
		return out, nil
	}
	out, err := c.Model.Infer(ctx, text, maxLen)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, out)
	return out, nil
}

// Len is the number of cached prompts.
func (c *CachedModel) Len() int {
	return c.cache.Len()
}
