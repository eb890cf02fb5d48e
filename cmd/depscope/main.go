package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/depscope/depscope/pkg/config"
	"github.com/depscope/depscope/pkg/engine"
	"github.com/depscope/depscope/pkg/logging"
	"github.com/depscope/depscope/pkg/model"
	"github.com/depscope/depscope/pkg/output"
	"github.com/depscope/depscope/pkg/scanner"
	"github.com/depscope/depscope/pkg/store"
	"github.com/depscope/depscope/pkg/walker"
	"github.com/depscope/depscope/pkg/watcher"
	"github.com/depscope/depscope/pkg/web"
)

const usage = `Usage: depscope <command> [flags]

Commands:
  sync      Scan the workspace and reconcile the dependency graph
  symbols   List the symbols of a file: depscope symbols <path>
  impact    Show transitive dependents: depscope impact <path#name/arity>
  cycles    Detect dependency cycles
  serve     Start the HTTP API, optionally watching for changes

Flags:
`

func main() {
	fs := pflag.NewFlagSet("depscope", pflag.ContinueOnError)
	fs.String("workspace", ".", "Path to the workspace root")
	fs.String("database", ".depscope/graph.db", "Path to the graph database, relative to the workspace")
	fs.Int("port", 8080, "Port for the HTTP server (serve command)")
	fs.Bool("watch", false, "Re-sync on file changes (serve command)")
	fs.Int("workers", 0, "Concurrent file scanners (0 = number of CPUs)")
	fs.Int("impact-depth", 10, "Default depth cap for impact analysis")
	fs.StringSlice("exclude", nil, "Extra directory names to skip while scanning")
	fs.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	fs.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, fs.FlagUsages())
	}

	command := "sync"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fatalf("loading configuration: %v", err)
	}
	logging.SetLevel(logging.LevelFromVerbosity(cfg.Verbosity, cfg.VerboseCnt))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg, fs.Args()); err != nil {
		fatalf("%v", err)
	}
}

func run(ctx context.Context, command string, cfg *config.Config, args []string) error {
	dbPath := cfg.Database
	if dbPath != ":memory:" && !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(cfg.Workspace, dbPath)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening graph database: %w", err)
	}

	eng, err := engine.New(st, engine.Options{
		Workers:     cfg.Workers,
		ImpactDepth: cfg.ImpactDepth,
	})
	if err != nil {
		st.Close()
		return err
	}
	defer eng.Close()

	w := walker.New(cfg.Workspace, scanner.DefaultRegistry(), cfg.Exclude)

	switch command {
	case "sync":
		return runSync(ctx, cfg, eng, w)
	case "symbols":
		if len(args) < 1 {
			return fmt.Errorf("usage: depscope symbols <path>")
		}
		return runSymbols(ctx, eng, args[0])
	case "impact":
		if len(args) < 1 {
			return fmt.Errorf("usage: depscope impact <path#name/arity>")
		}
		return runImpact(ctx, cfg, eng, args[0])
	case "cycles":
		return runCycles(ctx, eng)
	case "serve":
		return runServe(ctx, cfg, eng, w)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runSync(ctx context.Context, cfg *config.Config, eng *engine.Engine, w *walker.Walker) error {
	report, err := syncOnce(ctx, eng, w)
	if err != nil {
		return err
	}
	output.PrintSyncReport(cfg.Workspace, report)
	return nil
}

func runSymbols(ctx context.Context, eng *engine.Engine, path string) error {
	symbols, err := eng.SymbolsIn(ctx, path)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols known for %q, run 'depscope sync' first", path)
	}
	output.PrintSymbols(path, symbols)
	return nil
}

func runImpact(ctx context.Context, cfg *config.Config, eng *engine.Engine, ref string) error {
	id, err := engine.ResolveRef(ref)
	if err != nil {
		return err
	}
	entries, err := eng.ImpactOf(ctx, id, cfg.ImpactDepth)
	if err != nil {
		return err
	}
	output.PrintImpact(ref, entries)
	return nil
}

func runCycles(ctx context.Context, eng *engine.Engine) error {
	found, err := eng.FindCycles(ctx)
	if err != nil {
		return err
	}
	output.PrintCycles(found, func(id string) string {
		sym, err := eng.Symbol(ctx, id)
		if err != nil {
			return id
		}
		return fmt.Sprintf("%s#%s/%d", sym.Path, sym.Name, sym.Arity)
	})
	if len(found) > 0 {
		os.Exit(1)
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, eng *engine.Engine, w *walker.Walker) error {
	server := web.NewServer(eng, w)
	defer server.Close()

	// Build the graph before accepting traffic so first queries see data.
	if report, err := server.RunSync(ctx); err != nil {
		logging.Warn("Initial sync failed", "error", err)
	} else {
		logging.Info("Initial sync complete",
			"added", report.FilesAdded,
			"modified", report.FilesModified,
			"removed", report.FilesRemoved,
			"failed", report.FilesFailed)
	}

	if cfg.Watch {
		if err := startWatching(ctx, cfg, server); err != nil {
			return fmt.Errorf("starting file watcher: %w", err)
		}
	}

	go func() {
		<-ctx.Done()
		// Force exit; http.ListenAndServe has no shutdown hook here and
		// the process is done anyway.
		os.Exit(0)
	}()

	logging.Info("Starting server", "port", cfg.Port, "workspace", cfg.Workspace)
	return server.Start(cfg.Port)
}

func startWatching(ctx context.Context, cfg *config.Config, server *web.Server) error {
	fw, err := watcher.New(cfg.Workspace, scanner.DefaultRegistry().Extensions(), cfg.Exclude)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	deb := watcher.NewDebouncer(fw.Events(), 500*time.Millisecond, 5*time.Second)
	deb.Start(ctx)

	go func() {
		for ev := range deb.Output() {
			logging.Debug("File changes detected", "paths", len(ev.Paths))
			if _, err := server.RunSync(ctx); err != nil {
				logging.Warn("Watch-triggered sync failed", "error", err)
			}
		}
	}()

	logging.Info("Watching for file changes", "workspace", cfg.Workspace)
	return nil
}

func syncOnce(ctx context.Context, eng *engine.Engine, w *walker.Walker) (*model.SyncReport, error) {
	files, unreadable, err := w.Walk(ctx)
	if err != nil {
		return nil, fmt.Errorf("walking workspace: %w", err)
	}
	return eng.Sync(ctx, files, unreadable)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
