package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/aurras/internal/config"
	"github.com/mattjoyce/aurras/internal/plugin"
	"github.com/mattjoyce/aurras/internal/protocol"
)

func writeLabels(t *testing.T, dir, intents, entities string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "intent_labels.json"), []byte(intents), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "entity_labels.json"), []byte(entities), 0o644); err != nil {
		t.Fatal(err)
	}
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	dataset := t.TempDir()
	writeLabels(t, dataset, `{"0": "get_date", "1": "get_time"}`, `{"0": "none", "1": "date"}`)

	cfg := config.Defaults()
	cfg.Data.PluginsPath = t.TempDir()
	cfg.Data.DatasetPath = dataset
	cfg.Data.PromptPadding = 32
	cfg.Plugins["DATETIME"] = config.PluginConf{Config: map[string]any{"date_format": "January 02"}}
	return cfg
}

func noop(context.Context, *protocol.Request) ([]byte, error) { return nil, nil }

func registryWith(plugins ...*plugin.Descriptor) *plugin.Registry {
	r := plugin.NewRegistry()
	for _, p := range plugins {
		_ = r.Add(p)
	}
	return r
}

func datetimePlugin() *plugin.Descriptor {
	return &plugin.Descriptor{
		Name:            "DATETIME",
		Priority:        0,
		AcceptedIntents: []string{"get_date", "get_time"},
		Handler:         plugin.HandlerFunc(noop),
		Kind:            plugin.KindBuiltin,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	d := New(validConfig(t), registryWith(datetimePlugin()), nil)
	r := d.Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_MissingDataKeys(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Data.PluginsPath = ""
	cfg.Data.DatasetPath = ""
	cfg.Data.PromptPadding = 0

	r := New(cfg, registryWith(datetimePlugin()), nil).Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "data", "PLUGINS_PATH")
	assertHasError(t, r, "data", "DATASET_PATH")
	assertHasError(t, r, "data", "PROMPT_PADDING")
}

func TestValidate_MissingLabelTable(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	if err := os.Remove(cfg.Data.EntityLabelsPath()); err != nil {
		t.Fatal(err)
	}

	r := New(cfg, registryWith(datetimePlugin()), nil).Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "labels", "entity_labels.json")
}

func TestValidate_IntentCoverage(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	writeLabels(t, cfg.Data.DatasetPath, `{"0": "get_date", "1": "get_weather"}`, `{"0": "none"}`)

	r := New(cfg, registryWith(datetimePlugin()), nil).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("coverage gaps are warnings, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "labels", `intent "get_time" which is not in the intent label table`)
	assertHasWarning(t, r, "labels", `intent "get_weather" has no plugin`)
}

func TestValidate_PluginNotLoaded(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	off := false
	cfg.Plugins["GEMINI"] = config.PluginConf{Enabled: &off}
	cfg.Plugins["WEATHER"] = config.PluginConf{}

	r := New(cfg, registryWith(datetimePlugin()), nil).Validate(context.Background())
	assertHasWarning(t, r, "plugin_refs", "WEATHER")
	for _, w := range r.Warnings {
		if strings.Contains(w.Message, "GEMINI") {
			t.Fatalf("disabled plugin should not be reported: %v", w)
		}
	}
}

func TestValidate_EmptyRegistry(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	delete(cfg.Plugins, "DATETIME")
	r := New(cfg, nil, nil).Validate(context.Background())
	assertHasWarning(t, r, "plugins", "no plugins loaded")
}

func TestValidate_API(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		listen  string
		key     string
		wantErr string
		wantWrn string
	}{
		{name: "missing listen", wantErr: "api.listen is required"},
		{name: "open loopback", listen: "127.0.0.1:8080"},
		{name: "open localhost", listen: "localhost:8080"},
		{name: "open public", listen: "0.0.0.0:8080", wantWrn: "without an api_key"},
		{name: "keyed public", listen: ":8080", key: "secret"},
		{name: "unresolved key", listen: ":8080", key: "${AURRAS_DOCTOR_UNSET}", wantWrn: "AURRAS_DOCTOR_UNSET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(t)
			cfg.API.Enabled = true
			cfg.API.Listen = tt.listen
			cfg.API.APIKey = tt.key

			r := New(cfg, registryWith(datetimePlugin()), nil).Validate(context.Background())
			switch {
			case tt.wantErr != "":
				assertHasError(t, r, "api", tt.wantErr)
			case tt.wantWrn != "":
				if !r.Valid {
					t.Fatalf("expected valid, got %v", r.Errors)
				}
				if len(r.Warnings) == 0 || !strings.Contains(FormatHuman(r), tt.wantWrn) {
					t.Fatalf("expected warning containing %q, got %v", tt.wantWrn, r.Warnings)
				}
			default:
				if !r.Valid || len(r.Warnings) != 0 {
					t.Fatalf("expected clean result, got errors=%v warnings=%v", r.Errors, r.Warnings)
				}
			}
		})
	}
}

func TestValidate_HistoryPath(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.History.Path = ""
	r := New(cfg, registryWith(datetimePlugin()), nil).Validate(context.Background())
	assertHasError(t, r, "history", "history.path")
}

func TestValidate_HistoryPathLocal(t *testing.T) {
	t.Parallel()
	for _, path := range []string{filepath.Join(t.TempDir(), "data", "history.db"), ":memory:"} {
		cfg := validConfig(t)
		cfg.History.Enabled = true
		cfg.History.Path = path
		r := New(cfg, registryWith(datetimePlugin()), nil).Validate(context.Background())
		for _, issue := range r.Errors {
			if issue.Category == "history" {
				t.Errorf("path %q: unexpected history error %q", path, issue.Message)
			}
		}
	}
}

func TestValidate_PluginEnvVar(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Plugins["DATETIME"] = config.PluginConf{Config: map[string]any{"location": "${AURRAS_DOCTOR_TZ}"}}
	r := New(cfg, registryWith(datetimePlugin()), nil).Validate(context.Background())
	assertHasWarning(t, r, "env_vars", "AURRAS_DOCTOR_TZ")
}

func TestValidate_ModelHealth(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)

	down := func(context.Context) error { return errors.New("connection refused") }
	r := New(cfg, registryWith(datetimePlugin()), down).Validate(context.Background())
	assertHasWarning(t, r, "classifier", "connection refused")

	up := func(context.Context) error { return nil }
	r = New(cfg, registryWith(datetimePlugin()), up).Validate(context.Background())
	if len(r.Warnings) != 0 {
		t.Fatalf("healthy model should not warn: %v", r.Warnings)
	}

	cfg.Classifier.Endpoint = ""
	r = New(cfg, registryWith(datetimePlugin()), up).Validate(context.Background())
	assertHasWarning(t, r, "classifier", "no model server")
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Message: "bad thing"}},
	}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "bad thing") {
		t.Fatalf("expected JSON to contain error message, got: %s", out)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	r := &Result{Valid: true}
	out := FormatHuman(r)
	if !strings.Contains(out, "valid") {
		t.Fatalf("expected 'valid' in output, got: %s", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
		Warnings: []Issue{{Category: "test", Message: "iffy"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "broken") || !strings.Contains(out, "WARN") {
		t.Fatalf("expected error and warning in output, got: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
