package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/mattjoyce/aurras/internal/protocol"
)

// ErrDuplicatePlugin is returned when a second plugin claims an existing name.
var ErrDuplicatePlugin = errors.New("duplicate plugin name")

// LoadError reports a plugin that could not be loaded. It is fatal to startup.
type LoadError struct {
	Name string // manifest name, if it could be read
	Path string // plugin directory, empty for programmatic registrations
	Err  error
}

func (e *LoadError) Error() string {
	switch {
	case e.Name != "" && e.Path != "":
		return fmt.Sprintf("plugin %q (%s): %v", e.Name, e.Path, e.Err)
	case e.Name != "":
		return fmt.Sprintf("plugin %q: %v", e.Name, e.Err)
	default:
		return fmt.Sprintf("plugin at %s: %v", e.Path, e.Err)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

//go:generate mockgen -source=registry.go -destination=mocks/mock_handler.go -package=mocks

// Handler executes one turn. It returns the plugin's raw output, which the
// dispatcher validates against the response contract.
type Handler interface {
	Execute(ctx context.Context, req *protocol.Request) ([]byte, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *protocol.Request) ([]byte, error)

// Execute calls f(ctx, req).
func (f HandlerFunc) Execute(ctx context.Context, req *protocol.Request) ([]byte, error) {
	return f(ctx, req)
}

// Kind tells how a plugin's handler is provided.
type Kind string

const (
	KindBuiltin Kind = "builtin"
	KindExec    Kind = "exec"
)

// Descriptor is a loaded plugin.
type Descriptor struct {
	Name            string
	Priority        int // lower value wins
	AcceptedIntents []string
	Handler         Handler

	Kind        Kind
	Version     string
	Description string
	Path        string         // plugin directory
	Entrypoint  string         // absolute entrypoint path for exec plugins
	Config      map[string]any // operator config passed in every request

	order int // load order, tie-breaker for equal priorities
}

// Accepts reports whether the plugin declared intent.
func (d *Descriptor) Accepts(intent string) bool {
	return slices.Contains(d.AcceptedIntents, intent)
}

// LoadOrder is the zero-based position at which the plugin was registered.
func (d *Descriptor) LoadOrder() int {
	return d.order
}

// Registry holds loaded plugins and the intent → candidates index.
//
// A Registry is populated once at startup and is read-only afterwards, so it
// can be shared across goroutines without locking. Add must not be called
// once the registry has been handed to a dispatcher.
type Registry struct {
	plugins map[string]*Descriptor
	ordered []*Descriptor
	index   map[string][]*Descriptor
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]*Descriptor),
		index:   make(map[string][]*Descriptor),
	}
}

// Add registers a plugin and indexes it once under each accepted intent.
// Repeated intents are dropped from d.AcceptedIntents.
func (r *Registry) Add(d *Descriptor) error {
	if d == nil {
		return &LoadError{Err: fmt.Errorf("descriptor is nil")}
	}
	if d.Name == "" {
		return &LoadError{Path: d.Path, Err: fmt.Errorf("name is required")}
	}
	if len(d.AcceptedIntents) == 0 {
		return &LoadError{Name: d.Name, Path: d.Path, Err: fmt.Errorf("at least one accepted intent must be declared")}
	}
	if d.Handler == nil {
		return &LoadError{Name: d.Name, Path: d.Path, Err: fmt.Errorf("handler is required")}
	}
	if existing, exists := r.plugins[d.Name]; exists {
		return &LoadError{
			Name: d.Name,
			Path: d.Path,
			Err:  fmt.Errorf("%w (already loaded from %s)", ErrDuplicatePlugin, existing.Path),
		}
	}

	d.order = len(r.ordered)
	r.plugins[d.Name] = d
	r.ordered = append(r.ordered, d)

	intents := make([]string, 0, len(d.AcceptedIntents))
	for _, intent := range d.AcceptedIntents {
		if slices.Contains(intents, intent) {
			continue
		}
		intents = append(intents, intent)
		candidates := append(r.index[intent], d)
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Priority < candidates[j].Priority
		})
		r.index[intent] = candidates
	}
	d.AcceptedIntents = intents
	return nil
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.plugins[name]
	return d, ok
}

// All returns every plugin in load order.
func (r *Registry) All() []*Descriptor {
	return slices.Clone(r.ordered)
}

// Len is the number of loaded plugins.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Candidates returns the plugins registered for intent, best first: ascending
// priority, ties in load order. The result is empty when nothing accepts the
// intent and must be treated as read-only.
func (r *Registry) Candidates(intent string) []*Descriptor {
	c := r.index[intent]
	return c[:len(c):len(c)]
}

// Intents returns every intent that has at least one candidate, sorted.
func (r *Registry) Intents() []string {
	out := make([]string, 0, len(r.index))
	for intent := range r.index {
		out = append(out, intent)
	}
	sort.Strings(out)
	return out
}
