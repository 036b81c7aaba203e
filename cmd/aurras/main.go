package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/aurras/internal/api"
	"github.com/mattjoyce/aurras/internal/assistant"
	"github.com/mattjoyce/aurras/internal/classifier"
	"github.com/mattjoyce/aurras/internal/config"
	"github.com/mattjoyce/aurras/internal/doctor"
	"github.com/mattjoyce/aurras/internal/history"
	"github.com/mattjoyce/aurras/internal/log"
	"github.com/mattjoyce/aurras/internal/tui"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "interact":
		return runInteract(args)
	case "ask":
		return runAsk(args)
	case "classify":
		return runClassify(args)
	case "serve":
		return runServe(args)
	case "plugins":
		return runPlugins(args)
	case "history":
		return runHistory(args)
	case "config":
		return runConfigNoun(args)
	case "doctor":
		return runConfigCheck(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`aurras - intent-driven conversational assistant

Usage:
  aurras <command> [flags]

Commands:
  interact          Interactive console (=> prompt, type exit to leave)
  ask <prompt>      Answer a single prompt
  classify <prompt> Show the intent and entities for a prompt
  serve             Run the HTTP API
  plugins           List loaded plugins by priority
  history           Show recent turns
  config check      Validate configuration, plugins and label tables
  config lock       Record config integrity hashes
  version           Show version information
  help              Show this help message

Common flags:
  --config PATH     Config file or directory (default: discovered)
`)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- interact ---

func runInteract(args []string) int {
	fs := flag.NewFlagSet("interact", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	useTUI := fs.Bool("tui", false, "Use the full-screen console")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, *configPath)
	if err != nil {
		return fatalf("Startup failed: %v\n", err)
	}
	defer a.Close()

	if *useTUI {
		if err := tui.Run(ctx, a.assistant); err != nil && !errors.Is(err, context.Canceled) {
			return fatalf("Console error: %v\n", err)
		}
		return 0
	}

	err = a.assistant.Interact(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fatalf("Console error: %v\n", err)
	}
	return 0
}

// --- ask / classify ---

func runAsk(args []string) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output the reply envelope as JSON")
	verbose := fs.Bool("v", false, "Include intent, plugin and outcome (with --json)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "Usage: aurras ask [--json [-v]] <prompt>")
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, *configPath)
	if err != nil {
		return fatalf("Startup failed: %v\n", err)
	}
	defer a.Close()

	reply := a.assistant.Respond(ctx, assistant.SourceCLI, prompt)

	if !*jsonOut {
		fmt.Println(reply.Envelope.Response)
		return 0
	}

	var out any = reply.Envelope
	if *verbose {
		out = api.AskResponse{
			Response:   reply.Envelope.Response,
			TurnID:     reply.TurnID,
			Intent:     reply.Classification.Intent,
			Entities:   reply.Classification.Entities,
			Plugin:     reply.Result.Plugin,
			Status:     string(reply.Result.Status),
			Kind:       string(reply.Result.Kind),
		}
	}
	return printJSON(out)
}

func runClassify(args []string) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "Usage: aurras classify <prompt>")
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, *configPath)
	if err != nil {
		return fatalf("Startup failed: %v\n", err)
	}
	defer a.Close()

	cls, err := a.assistant.Classify(ctx, prompt)
	if err != nil {
		return fatalf("Classification failed: %v\n", err)
	}
	return printJSON(cls)
}

// --- serve ---

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	listen := fs.String("listen", "", "Override api.listen")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, *configPath)
	if err != nil {
		return fatalf("Startup failed: %v\n", err)
	}
	defer a.Close()

	apiConfig := api.Config{
		Listen:         a.cfg.API.Listen,
		APIKey:         a.cfg.API.APIKey,
		RequestsPerMin: a.cfg.API.RequestsPerMin,
	}
	if *listen != "" {
		apiConfig.Listen = *listen
	}

	var hist api.HistoryReader
	if a.history != nil {
		hist = a.history
	}

	if err := a.model.Health(ctx); err != nil {
		a.logger.Warn("model server is not healthy; prompts will get the internal-error reply until it is", "endpoint", a.cfg.Classifier.Endpoint, "error", err)
	}

	server := api.New(apiConfig, a.assistant, a.registry, hist, log.WithComponent("api"))
	a.logger.Info("aurras serving (press Ctrl+C to stop)", "version", version, "listen", apiConfig.Listen)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("API server failed", "error", err)
		return 1
	}
	a.logger.Info("aurras stopped")
	return 0
}

// --- plugins ---

func runPlugins(args []string) int {
	fs := flag.NewFlagSet("plugins", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fatalf("Load error: %v\n", err)
	}
	registry, err := loadRegistry(cfg)
	if err != nil {
		return fatalf("%v\n", err)
	}

	if *jsonOut {
		type entry struct {
			Name            string   `json:"name"`
			Priority        int      `json:"priority"`
			Kind            string   `json:"kind"`
			AcceptedIntents []string `json:"accepted_intents"`
			Version         string   `json:"version,omitempty"`
			Path            string   `json:"path,omitempty"`
		}
		out := make([]entry, 0, registry.Len())
		for _, d := range registry.All() {
			out = append(out, entry{d.Name, d.Priority, string(d.Kind), d.AcceptedIntents, d.Version, d.Path})
		}
		return printJSON(out)
	}

	if registry.Len() == 0 {
		fmt.Println("No plugins loaded.")
		return 0
	}
	fmt.Println(tui.RenderPluginTable(registry.All()))

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTENT\tCANDIDATES")
	for _, intent := range registry.Intents() {
		var names []string
		for _, d := range registry.Candidates(intent) {
			names = append(names, d.Name)
		}
		fmt.Fprintf(w, "%s\t%s\n", intent, strings.Join(names, " → "))
	}
	_ = w.Flush()
	return 0
}

// --- history ---

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", history.DefaultLimit, "Number of turns to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fatalf("Load error: %v\n", err)
	}
	if !cfg.History.Enabled {
		return fatalf("History is disabled (history.enabled: false)\n")
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, db, err := openHistory(ctx, cfg)
	if err != nil {
		return fatalf("%v\n", err)
	}
	defer db.Close()

	if id := fs.Arg(0); id != "" {
		turn, err := store.Get(ctx, id)
		if errors.Is(err, history.ErrNotFound) {
			return fatalf("Turn %s not found\n", id)
		}
		if err != nil {
			return fatalf("Failed to read history: %v\n", err)
		}
		return printJSON(turn)
	}

	turns, err := store.Recent(ctx, *limit)
	if err != nil {
		return fatalf("Failed to read history: %v\n", err)
	}
	if *jsonOut {
		return printJSON(turns)
	}
	if len(turns) == 0 {
		fmt.Println("No turns recorded.")
		return 0
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSOURCE\tINTENT\tPLUGIN\tSTATUS\tPROMPT\tRESPONSE")
	for _, t := range turns {
		status := t.Status
		if t.FailureKind != "" {
			status += " (" + t.FailureKind + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.CreatedAt.Local().Format(time.DateTime),
			t.Source,
			dash(t.Intent),
			dash(t.Plugin),
			status,
			truncate(t.Prompt, 40),
			truncate(t.Response, 40),
		)
	}
	_ = w.Flush()
	return 0
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// --- config ---

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: aurras config <check|lock> [flags]")
		return 1
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	case "help", "--help", "-h":
		fmt.Println("Usage: aurras config <check|lock> [flags]")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

// runConfigCheck exits 0 when clean, 2 on warnings only and 1 on errors.
func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	format := fs.String("format", "human", "Output format: human or json")
	offline := fs.Bool("offline", false, "Do not contact the model server")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fatalf("Load error: %v\n", err)
	}
	registry, err := loadRegistry(cfg)
	if err != nil {
		return fatalf("%v\n", err)
	}

	var health doctor.HealthFunc
	if !*offline {
		health = classifierHealth(cfg)
	}

	ctx, cancel := signalContext()
	defer cancel()

	result := doctor.New(cfg, registry, health).Validate(ctx)

	switch *format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			return fatalf("Failed to render JSON: %v\n", err)
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func classifierHealth(cfg *config.Config) doctor.HealthFunc {
	return classifier.NewClient(cfg.Classifier.Endpoint, cfg.Classifier.Timeout).Health
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "Show hashes without writing .checksums")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	target := *configPath
	if target == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return fatalf("Failed to discover config: %v\n", err)
		}
		target = discovered
	}

	dir, file := target, "config.yaml"
	if info, err := os.Stat(target); err != nil {
		return fatalf("Config not found: %v\n", err)
	} else if !info.IsDir() {
		dir, file = filepath.Dir(target), filepath.Base(target)
	}

	report, err := config.GenerateChecksums(dir, []string{file}, *dryRun)
	if err != nil {
		return fatalf("Lock failed: %v\n", err)
	}

	for _, f := range report.Files {
		if !f.Exists {
			fmt.Printf("  missing  %s\n", f.Filename)
			continue
		}
		fmt.Printf("  blake3   %s  %s\n", f.Hash, f.Filename)
	}
	if report.Written {
		fmt.Printf("Wrote %s\n", report.ChecksumPath)
	} else {
		fmt.Println("Dry run: .checksums not written")
	}
	return 0
}

// --- version ---

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: aurras version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		return printJSON(info)
	}

	fmt.Printf("aurras %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fatalf("Failed to render JSON: %v\n", err)
	}
	fmt.Println(string(data))
	return 0
}
