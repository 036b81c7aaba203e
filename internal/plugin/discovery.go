package plugin

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/aurras/internal/config"
)

const manifestFilename = "manifest.yaml"

// LoadOptions controls how Load turns manifests into descriptors.
type LoadOptions struct {
	// Builtins resolves manifests that name an in-process handler.
	Builtins Builtins
	// Plugins is the operator config keyed by plugin name.
	Plugins map[string]config.PluginConf
	Logger  *slog.Logger
}

// Load scans the plugin roots for manifest.yaml files and builds a registry.
//
// Roots are processed in the given order and each is walked lexically, which
// fixes the load order used to break priority ties. Any unreadable or invalid
// manifest, unknown builtin, failed trust check or duplicate name aborts the
// load with a *LoadError. Plugins disabled in config are skipped.
func Load(pluginRoots []string, opts LoadOptions) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	absRoots, err := resolveRoots(pluginRoots)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	seen := make(map[string]string) // manifest name -> plugin dir, disabled plugins included
	for _, root := range absRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || d.Name() != manifestFilename {
				return nil
			}

			pluginPath := filepath.Dir(path)
			desc, err := loadPlugin(pluginPath, absRoots, opts, seen, logger)
			if err != nil {
				return err
			}
			if desc == nil {
				return nil
			}
			if err := registry.Add(desc); err != nil {
				return err
			}

			logger.Info("loaded plugin",
				"plugin", desc.Name,
				"kind", desc.Kind,
				"priority", desc.Priority,
				"intents", desc.AcceptedIntents,
				"path", desc.Path,
			)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	for name, pc := range opts.Plugins {
		if _, ok := registry.Get(name); !ok && pc.IsEnabled() {
			logger.Warn("plugin configured but not found", "plugin", name)
		}
	}

	return registry, nil
}

func resolveRoots(pluginRoots []string) ([]string, error) {
	absRoots := make([]string, 0, len(pluginRoots))
	seen := make(map[string]struct{}, len(pluginRoots))
	for _, root := range pluginRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve plugin root %q: %w", root, err)
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("plugin root does not exist: %s", absRoot)
			}
			return nil, fmt.Errorf("failed to stat plugin root %s: %w", absRoot, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("plugin root is not a directory: %s", absRoot)
		}
		if _, ok := seen[absRoot]; ok {
			continue
		}
		seen[absRoot] = struct{}{}
		absRoots = append(absRoots, absRoot)
	}
	if len(absRoots) == 0 {
		return nil, fmt.Errorf("at least one plugin root is required")
	}
	return absRoots, nil
}

// loadPlugin reads and validates a single plugin. It returns nil, nil for a
// plugin switched off in config. Names are recorded in seen before the enabled
// check, so a duplicate is fatal even when that name is disabled.
func loadPlugin(pluginPath string, roots []string, opts LoadOptions, seen map[string]string, logger *slog.Logger) (*Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(pluginPath, manifestFilename))
	if err != nil {
		return nil, &LoadError{Path: pluginPath, Err: fmt.Errorf("failed to read manifest: %w", err)}
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, &LoadError{Name: peekName(data), Path: pluginPath, Err: err}
	}

	if prev, dup := seen[m.Name]; dup {
		return nil, &LoadError{
			Name: m.Name,
			Path: pluginPath,
			Err:  fmt.Errorf("%w (already declared in %s)", ErrDuplicatePlugin, prev),
		}
	}
	seen[m.Name] = pluginPath

	conf := opts.Plugins[m.Name]
	if !conf.IsEnabled() {
		logger.Info("plugin disabled by config", "plugin", m.Name, "path", pluginPath)
		return nil, nil
	}

	desc := &Descriptor{
		Name:            m.Name,
		Priority:        int(*m.Priority),
		AcceptedIntents: m.AcceptedIntents,
		Version:         m.Version,
		Description:     m.Description,
		Path:            pluginPath,
		Config:          conf.Config,
	}

	if m.Builtin != "" {
		h, err := opts.Builtins.build(m.Builtin, conf.Config)
		if err != nil {
			return nil, &LoadError{Name: m.Name, Path: pluginPath, Err: err}
		}
		desc.Kind = KindBuiltin
		desc.Handler = h
		return desc, nil
	}

	entrypoint := filepath.Join(pluginPath, m.Entrypoint)
	if err := validateTrust(entrypoint, pluginPath, roots); err != nil {
		return nil, &LoadError{Name: m.Name, Path: pluginPath, Err: fmt.Errorf("trust validation failed: %w", err)}
	}
	exe := NewExecHandler(entrypoint, pluginPath)
	exe.Logger = logger.With("plugin", m.Name)
	desc.Kind = KindExec
	desc.Entrypoint = entrypoint
	desc.Handler = exe
	return desc, nil
}

// peekName recovers the name from a manifest that failed validation, for
// error messages.
func peekName(data []byte) string {
	var probe struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.Name)
}
