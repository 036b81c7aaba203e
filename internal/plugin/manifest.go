package plugin

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/aurras/internal/protocol"
)

// Intents is the list of intents a plugin answers.
//
// Accepted formats:
//   - single scalar: accepted_intents: get_time
//   - sequence:      accepted_intents: [get_date, get_time]
type Intents []string

func (in *Intents) UnmarshalYAML(n *yaml.Node) error {
	if n == nil {
		*in = nil
		return nil
	}

	var raw []string
	switch n.Kind {
	case yaml.ScalarNode:
		raw = []string{n.Value}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("accepted_intents entries must be strings")
			}
			raw = append(raw, item.Value)
		}
	default:
		return fmt.Errorf("accepted_intents must be a string or a sequence of strings")
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, intent := range raw {
		intent = strings.TrimSpace(intent)
		if intent == "" {
			return fmt.Errorf("accepted_intents contains an empty intent")
		}
		if _, dup := seen[intent]; dup {
			continue
		}
		seen[intent] = struct{}{}
		out = append(out, intent)
	}

	*in = out
	return nil
}

// Priority is a manifest priority. Only YAML integers are accepted; yaml.v3
// would otherwise truncate floats such as 1.5 into an int.
type Priority int

func (p *Priority) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!int" {
		return fmt.Errorf("priority must be an integer, got %q", n.Value)
	}
	var v int
	if err := n.Decode(&v); err != nil {
		return fmt.Errorf("priority must be an integer: %w", err)
	}
	*p = Priority(v)
	return nil
}

// Manifest defines the structure of a plugin's manifest.yaml file.
//
// Exactly one of Entrypoint (an executable relative to the plugin directory,
// spoken to over stdin/stdout) or Builtin (the name of an in-process handler
// compiled into the binary) must be set.
type Manifest struct {
	Name            string    `yaml:"name"`
	Version         string    `yaml:"version,omitempty"`
	Protocol        int       `yaml:"protocol,omitempty"`
	Description     string    `yaml:"description,omitempty"`
	Priority        *Priority `yaml:"priority"`
	AcceptedIntents Intents   `yaml:"accepted_intents"`
	Entrypoint      string    `yaml:"entrypoint,omitempty"`
	Builtin         string    `yaml:"builtin,omitempty"`
}

// ParseManifest decodes and validates manifest YAML. A non-integer priority
// (1.5, 2.0, 1e3, "3") surfaces as a YAML decode error.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	m.Name = strings.TrimSpace(m.Name)
	m.Entrypoint = strings.TrimSpace(m.Entrypoint)
	m.Builtin = strings.TrimSpace(m.Builtin)

	if err := validateManifest(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// validateManifest checks required manifest fields.
func validateManifest(m *Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Priority == nil {
		return fmt.Errorf("priority is required")
	}
	if len(m.AcceptedIntents) == 0 {
		return fmt.Errorf("at least one accepted intent must be declared")
	}

	switch {
	case m.Entrypoint == "" && m.Builtin == "":
		return fmt.Errorf("one of entrypoint or builtin is required")
	case m.Entrypoint != "" && m.Builtin != "":
		return fmt.Errorf("entrypoint and builtin are mutually exclusive")
	}

	if m.Entrypoint != "" {
		if strings.Contains(m.Entrypoint, "..") {
			return fmt.Errorf("entrypoint contains path traversal: %s", m.Entrypoint)
		}
		if m.Protocol == 0 {
			m.Protocol = protocol.Version
		}
		if m.Protocol != protocol.Version {
			return fmt.Errorf("unsupported protocol version %d (supported: %d)", m.Protocol, protocol.Version)
		}
	}

	return nil
}
