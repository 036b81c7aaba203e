package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the complete aurras configuration.
//
// The data/model/training sections keep the upper-case key names used by the
// trainer tooling so a single file can be shared with it. Only PLUGINS_PATH,
// DATASET_PATH and PROMPT_PADDING are consumed here.
type Config struct {
	Service    ServiceConfig         `yaml:"service"`
	Data       DataConfig            `yaml:"data"`
	Model      ModelConfig           `yaml:"model"`
	Training   TrainingConfig        `yaml:"training"`
	Classifier ClassifierConfig      `yaml:"classifier"`
	Dispatch   DispatchConfig        `yaml:"dispatch"`
	History    HistoryConfig         `yaml:"history"`
	API        APIConfig             `yaml:"api,omitempty"`
	Plugins    map[string]PluginConf `yaml:"plugins,omitempty"`

	// SourcePath is the absolute path of the file Load read. Not serialized.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DataConfig locates plugins and the label tables.
type DataConfig struct {
	PluginsPath           string `yaml:"PLUGINS_PATH"`
	DatasetPath           string `yaml:"DATASET_PATH"`
	ModelName             string `yaml:"MODEL_NAME"`
	PromptPadding         int    `yaml:"PROMPT_PADDING"`
	SamplesPerIntent      int    `yaml:"SAMPLES_PER_INTENT"`
	AllowDuplicateSamples bool   `yaml:"ALLOW_DUPLICATE_SAMPLES"`
}

// ModelConfig is owned by the trainer; carried for round-tripping.
type ModelConfig struct {
	PretrainedPath string `yaml:"PRETRAINED_PATH"`
}

// TrainingConfig is owned by the trainer; carried for round-tripping.
type TrainingConfig struct {
	Epochs int `yaml:"EPOCHS"`
}

// ClassifierConfig points at the inference server that runs the model.
type ClassifierConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

// DispatchConfig tunes plugin invocation.
type DispatchConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// Cascade makes a failed dispatch fall through to the next candidate.
	// Off by default: a failed turn is reported as failed.
	Cascade bool `yaml:"cascade"`
}

// HistoryConfig controls the sqlite turn transcript.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Listen         string `yaml:"listen"`
	APIKey         string `yaml:"api_key"`
	RequestsPerMin int    `yaml:"requests_per_min"`
}

// PluginConf is the operator-side configuration of a single plugin, keyed by
// the plugin's manifest name.
type PluginConf struct {
	Enabled *bool          `yaml:"enabled,omitempty"`
	Timeout time.Duration  `yaml:"timeout,omitempty"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// IsEnabled reports whether the plugin should be loaded. Plugins are enabled
// unless explicitly switched off.
func (p PluginConf) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// PluginRoots splits PLUGINS_PATH on the OS path list separator.
func (d DataConfig) PluginRoots() []string {
	var roots []string
	for _, r := range filepath.SplitList(d.PluginsPath) {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, r)
		}
	}
	return roots
}

// IntentLabelsPath is the intent lookup table inside DATASET_PATH.
func (d DataConfig) IntentLabelsPath() string {
	return filepath.Join(d.DatasetPath, "intent_labels.json")
}

// EntityLabelsPath is the entity lookup table inside DATASET_PATH.
func (d DataConfig) EntityLabelsPath() string {
	return filepath.Join(d.DatasetPath, "entity_labels.json")
}

// PluginTimeout returns the invocation timeout for a plugin, falling back to
// the dispatch default.
func (c *Config) PluginTimeout(name string) time.Duration {
	if pc, ok := c.Plugins[name]; ok && pc.Timeout > 0 {
		return pc.Timeout
	}
	if c.Dispatch.DefaultTimeout > 0 {
		return c.Dispatch.DefaultTimeout
	}
	return Defaults().Dispatch.DefaultTimeout
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "aurras",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Classifier: ClassifierConfig{
			Endpoint:  "http://127.0.0.1:8765",
			Timeout:   30 * time.Second,
			CacheSize: 256,
		},
		Dispatch: DispatchConfig{
			DefaultTimeout: 10 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "./data/history.db",
		},
		API: APIConfig{
			Listen:         "127.0.0.1:8080",
			RequestsPerMin: 60,
		},
		Plugins: make(map[string]PluginConf),
	}
}

// DiscoverConfigPath finds a config by checking standard locations.
// Priority order: $AURRAS_CONFIG, ~/.config/aurras, /etc/aurras, ./config.yaml
func DiscoverConfigPath() (string, error) {
	if p := os.Getenv("AURRAS_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "aurras")
		if _, err := os.Stat(filepath.Join(userConfigDir, "config.yaml")); err == nil {
			return userConfigDir, nil
		}
	}

	if _, err := os.Stat("/etc/aurras/config.yaml"); err == nil {
		return "/etc/aurras", nil
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("no config found (checked: $AURRAS_CONFIG, ~/.config/aurras, /etc/aurras, ./config.yaml)")
}
