package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattjoyce/aurras/internal/assistant"
	"github.com/mattjoyce/aurras/internal/builtin"
	"github.com/mattjoyce/aurras/internal/classifier"
	"github.com/mattjoyce/aurras/internal/config"
	"github.com/mattjoyce/aurras/internal/dispatch"
	"github.com/mattjoyce/aurras/internal/history"
	"github.com/mattjoyce/aurras/internal/log"
	"github.com/mattjoyce/aurras/internal/nlu"
	"github.com/mattjoyce/aurras/internal/plugin"
	"github.com/mattjoyce/aurras/internal/storage"
)

// app is the wired runtime shared by every verb that answers prompts.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *plugin.Registry
	model     *classifier.Client
	assistant *assistant.Assistant
	history   *history.Store
	db        *sql.DB
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// loadConfig resolves configPath (discovering it when empty), loads the file
// and initialises logging from it.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	return cfg, nil
}

// loadRegistry discovers plugins under PLUGINS_PATH. Any load failure is fatal.
func loadRegistry(cfg *config.Config) (*plugin.Registry, error) {
	registry, err := plugin.Load(cfg.Data.PluginRoots(), plugin.LoadOptions{
		Builtins: builtin.Default(),
		Plugins:  cfg.Plugins,
		Logger:   log.WithComponent("plugin"),
	})
	if err != nil {
		return nil, fmt.Errorf("plugin loading failed: %w", err)
	}
	return registry, nil
}

// openHistory opens the turn transcript, or returns nil when history is off.
func openHistory(ctx context.Context, cfg *config.Config) (*history.Store, *sql.DB, error) {
	if !cfg.History.Enabled {
		return nil, nil, nil
	}
	db, err := storage.OpenSQLite(ctx, cfg.History.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	return history.NewStore(db), db, nil
}

// bootstrap wires config, plugins, the model client, the router and history
// into an assistant.
func bootstrap(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := log.WithComponent("main")

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("plugin discovery complete", "count", registry.Len(), "intents", len(registry.Intents()))

	intents, err := nlu.LoadLabels(cfg.Data.IntentLabelsPath())
	if err != nil {
		return nil, fmt.Errorf("intent labels: %w", err)
	}
	entities, err := nlu.LoadLabels(cfg.Data.EntityLabelsPath())
	if err != nil {
		return nil, fmt.Errorf("entity labels: %w", err)
	}

	client := classifier.NewClient(cfg.Classifier.Endpoint, cfg.Classifier.Timeout)
	model, err := classifier.NewCachedModel(client, cfg.Classifier.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("classification cache: %w", err)
	}
	cls := nlu.NewClassifier(model, intents, entities, cfg.Data.PromptPadding)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		model:    client,
	}

	opts := []assistant.Option{assistant.WithLogger(log.WithComponent("assistant"))}
	store, db, err := openHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		a.history, a.db = store, db
		opts = append(opts, assistant.WithRecorder(store))
		logger.Debug("history enabled", "path", cfg.History.Path)
	}

	a.assistant = assistant.New(cls, dispatch.New(registry, cfg), opts...)
	return a, nil
}

func fatalf(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, format, args...)
	return 1
}
