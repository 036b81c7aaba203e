// Package doctor validates aurras configuration, plugins and label tables.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"

	"github.com/mattjoyce/aurras/internal/config"
	"github.com/mattjoyce/aurras/internal/nlu"
	"github.com/mattjoyce/aurras/internal/plugin"
	"github.com/mattjoyce/aurras/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// HealthFunc probes the model server.
type HealthFunc func(ctx context.Context) error

// Doctor validates configuration against loaded plugins.
type Doctor struct {
	cfg      *config.Config
	registry *plugin.Registry
	health   HealthFunc
}

// New creates a Doctor from a loaded config and plugin registry. health may be
// nil, in which case the model server is not contacted.
func New(cfg *config.Config, registry *plugin.Registry, health HealthFunc) *Doctor {
	if registry == nil {
		registry = plugin.NewRegistry()
	}
	return &Doctor{cfg: cfg, registry: registry, health: health}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.validateData(r)
	d.validateLabels(r)
	d.validatePluginRefs(r)
	d.validateAPIConfig(r)
	d.validateHistory(r)
	d.warnMissingEnvVars(r)
	d.checkModel(ctx, r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateData(r *Result) {
	if len(d.cfg.Data.PluginRoots()) == 0 {
		d.addError(r, "data", "data.PLUGINS_PATH", "PLUGINS_PATH is required")
	}
	if d.cfg.Data.DatasetPath == "" {
		d.addError(r, "data", "data.DATASET_PATH", "DATASET_PATH is required")
	}
	if d.cfg.Data.PromptPadding <= 0 {
		d.addError(r, "data", "data.PROMPT_PADDING", "PROMPT_PADDING must be positive")
	}
	if d.registry.Len() == 0 {
		d.addWarning(r, "plugins", "data.PLUGINS_PATH", "no plugins loaded; every prompt will be answered with the fallback")
	}
}

// validateLabels loads both label tables and cross-checks the intent table
// against what plugins declare.
func (d *Doctor) validateLabels(r *Result) {
	if d.cfg.Data.DatasetPath == "" {
		return
	}

	intents, err := nlu.LoadLabels(d.cfg.Data.IntentLabelsPath())
	if err != nil {
		d.addError(r, "labels", "data.DATASET_PATH", err.Error())
	}
	if _, err := nlu.LoadLabels(d.cfg.Data.EntityLabelsPath()); err != nil {
		d.addError(r, "labels", "data.DATASET_PATH", err.Error())
	}
	if intents == nil {
		return
	}

	known := make(map[string]struct{}, len(intents))
	for _, name := range intents {
		known[name] = struct{}{}
	}

	for _, p := range d.registry.All() {
		for _, intent := range p.AcceptedIntents {
			if _, ok := known[intent]; !ok {
				d.addWarning(r, "labels", "plugins."+p.Name,
					fmt.Sprintf("plugin %q accepts intent %q which is not in the intent label table", p.Name, intent))
			}
		}
	}

	var orphaned []string
	for name := range known {
		if len(d.registry.Candidates(name)) == 0 {
			orphaned = append(orphaned, name)
		}
	}
	sort.Strings(orphaned)
	for _, name := range orphaned {
		d.addWarning(r, "labels", "",
			fmt.Sprintf("intent %q has no plugin; prompts classified as it get the fallback", name))
	}
}

// validatePluginRefs checks that plugins in config were loaded.
func (d *Doctor) validatePluginRefs(r *Result) {
	names := make([]string, 0, len(d.cfg.Plugins))
	for name := range d.cfg.Plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := d.cfg.Plugins[name]
		if !pc.IsEnabled() {
			continue
		}
		if _, ok := d.registry.Get(name); !ok {
			d.addWarning(r, "plugin_refs", fmt.Sprintf("plugins.%s", name),
				fmt.Sprintf("plugin %q in config but not found under PLUGINS_PATH", name))
		}
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when the API is enabled")
		return
	}
	if d.cfg.API.APIKey == "" && !isLoopback(d.cfg.API.Listen) {
		d.addWarning(r, "api", "api.api_key",
			fmt.Sprintf("API listens on %s without an api_key", d.cfg.API.Listen))
	}
	if d.cfg.API.RequestsPerMin <= 0 {
		d.addWarning(r, "api", "api.requests_per_min", "rate limiting is disabled")
	}
}

func (d *Doctor) validateHistory(r *Result) {
	if !d.cfg.History.Enabled {
		return
	}
	if d.cfg.History.Path == "" {
		d.addError(r, "history", "history.path", "history.path is required when history is enabled")
		return
	}
	if err := storage.CheckDatabasePath(d.cfg.History.Path); err != nil {
		d.addError(r, "history", "history.path", err.Error())
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnMissingEnvVars flags ${VAR} references that survived interpolation.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	if m := envVarRe.FindStringSubmatch(d.cfg.API.APIKey); m != nil {
		d.addWarning(r, "env_vars", "api.api_key", fmt.Sprintf("environment variable ${%s} not set", m[1]))
	}
	for name, pc := range d.cfg.Plugins {
		for key, v := range pc.Config {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if m := envVarRe.FindStringSubmatch(s); m != nil {
				d.addWarning(r, "env_vars", fmt.Sprintf("plugins.%s.config.%s", name, key),
					fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
}

func (d *Doctor) checkModel(ctx context.Context, r *Result) {
	if d.cfg.Classifier.Endpoint == "" {
		d.addWarning(r, "classifier", "classifier.endpoint", "no model server configured; prompts cannot be classified")
		return
	}
	if d.health == nil {
		return
	}
	if err := d.health(ctx); err != nil {
		d.addWarning(r, "classifier", "classifier.endpoint",
			fmt.Sprintf("model server at %s is not healthy: %v", d.cfg.Classifier.Endpoint, err))
	}
}

func isLoopback(listen string) bool {
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
