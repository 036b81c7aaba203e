// Package builtin holds the plugins compiled into the aurras binary. They are
// still declared by a manifest under PLUGINS_PATH (builtin: <name>) so that
// priority and accepted intents stay operator-controlled.
package builtin

import (
	"fmt"
	"time"

	"github.com/mattjoyce/aurras/internal/plugin"
)

// Default returns the factories for every builtin plugin.
func Default() plugin.Builtins {
	return plugin.Builtins{
		"datetime": func(cfg map[string]any) (plugin.Handler, error) {
			return NewDatetime(cfg, time.Now)
		},
		"gemini": func(cfg map[string]any) (plugin.Handler, error) {
			return NewGemini(cfg, nil)
		},
	}
}

func stringOpt(cfg map[string]any, key, def string) (string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("config %s must be a string, got %T", key, v)
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

func durationOpt(cfg map[string]any, key string, def time.Duration) (time.Duration, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, fmt.Errorf("config %s: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(t) * time.Second, nil
	default:
		return 0, fmt.Errorf("config %s must be a duration, got %T", key, v)
	}
}
