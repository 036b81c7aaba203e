package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const configFilename = "config.yaml"

// Load reads, interpolates, defaults and validates the configuration at
// configPath. A directory is accepted and resolved to <dir>/config.yaml.
// Relative paths inside the file are resolved against the file's directory.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath
	resolvePaths(cfg, filepath.Dir(absPath))

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Defaults. Unknown keys are rejected so that a
// typo fails at startup instead of silently falling back to a default.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()

	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = make(map[string]PluginConf)
	}
	return cfg, nil
}

func resolveConfigFile(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, configFilename)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", configFilename, absPath)
		}
	}
	return absPath, nil
}

// verifyConfigHash checks the config file against <dir>/.checksums when one exists.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(filepath.Join(dir, checksumsFilename)); os.IsNotExist(err) {
		return nil
	}

	checksums, err := LoadChecksums(dir)
	if err != nil {
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: aurras config lock --config %s", basename, dir, dir)
	}

	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: aurras config lock --config %s", path, err, dir)
	}
	return nil
}

func resolvePaths(cfg *Config, baseDir string) {
	abs := func(p string) string {
		if p == "" || p == ":memory:" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}

	roots := cfg.Data.PluginRoots()
	for i, r := range roots {
		roots[i] = abs(r)
	}
	cfg.Data.PluginsPath = strings.Join(roots, string(filepath.ListSeparator))
	cfg.Data.DatasetPath = abs(cfg.Data.DatasetPath)
	cfg.History.Path = abs(cfg.History.Path)
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate performs basic validation on the configuration.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := strings.ToLower(cfg.Service.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if len(cfg.Data.PluginRoots()) == 0 {
		return fmt.Errorf("data.PLUGINS_PATH is required")
	}
	if strings.TrimSpace(cfg.Data.DatasetPath) == "" {
		return fmt.Errorf("data.DATASET_PATH is required")
	}
	if cfg.Data.PromptPadding <= 0 {
		return fmt.Errorf("data.PROMPT_PADDING must be positive (got %d)", cfg.Data.PromptPadding)
	}

	if strings.TrimSpace(cfg.Classifier.Endpoint) == "" {
		return fmt.Errorf("classifier.endpoint is required")
	}
	if cfg.Classifier.Timeout <= 0 {
		return fmt.Errorf("classifier.timeout must be positive")
	}
	if cfg.Classifier.CacheSize < 0 {
		return fmt.Errorf("classifier.cache_size must not be negative")
	}

	if cfg.Dispatch.DefaultTimeout <= 0 {
		return fmt.Errorf("dispatch.default_timeout must be positive")
	}

	if cfg.History.Enabled && cfg.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if envVarPattern.MatchString(cfg.API.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.API.APIKey)
			return fmt.Errorf("api.api_key: environment variable ${%s} is not set", matches[1])
		}
		if cfg.API.RequestsPerMin < 0 {
			return fmt.Errorf("api.requests_per_min must not be negative")
		}
	}

	for name, plugin := range cfg.Plugins {
		if plugin.Timeout < 0 {
			return fmt.Errorf("plugin %q: timeout must not be negative", name)
		}
		if !plugin.IsEnabled() || plugin.Config == nil {
			continue
		}
		if err := checkUnresolvedEnvVars(plugin.Config, name); err != nil {
			return err
		}
	}

	return nil
}

// checkUnresolvedEnvVars recursively checks for ${VAR} placeholders in config values.
func checkUnresolvedEnvVars(data map[string]any, pluginName string) error {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if envVarPattern.MatchString(v) {
				matches := envVarPattern.FindStringSubmatch(v)
				if len(matches) > 1 {
					return fmt.Errorf("plugin %q: environment variable ${%s} is not set", pluginName, matches[1])
				}
				return fmt.Errorf("plugin %q: unresolved environment variable in config.%s", pluginName, key)
			}
		case map[string]any:
			if err := checkUnresolvedEnvVars(v, pluginName); err != nil {
				return err
			}
		}
	}
	return nil
}
