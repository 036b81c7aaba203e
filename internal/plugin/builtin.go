package plugin

import (
	"context"
	"fmt"
	"sort"

	"github.com/mattjoyce/aurras/internal/protocol"
)

// Factory builds an in-process handler from the plugin's operator config
// (plugins.<name>.config in config.yaml, possibly nil).
type Factory func(cfg map[string]any) (Handler, error)

// Builtins maps the value of a manifest's builtin field to its factory.
type Builtins map[string]Factory

// Names returns the registered builtin names, sorted.
func (b Builtins) Names() []string {
	out := make([]string, 0, len(b))
	for name := range b {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (b Builtins) build(name string, cfg map[string]any) (Handler, error) {
	factory, ok := b[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin %q (available: %v)", name, b.Names())
	}
	h, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("builtin %q: %w", name, err)
	}
	if h == nil {
		return nil, fmt.Errorf("builtin %q: factory returned no handler", name)
	}
	return h, nil
}

// Text adapts a function producing reply text into a Handler that emits a
// well-formed response document.
func Text(fn func(ctx context.Context, req *protocol.Request) (string, error)) Handler {
	return HandlerFunc(func(ctx context.Context, req *protocol.Request) ([]byte, error) {
		text, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return protocol.EncodeResponse(&protocol.Response{Response: text})
	})
}
