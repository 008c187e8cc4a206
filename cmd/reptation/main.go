// Command reptation runs ensembles of the lattice reptation model and writes
// drift velocity, diffusion and trajectory data.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/talgya/reptation/internal/api"
	"github.com/talgya/reptation/internal/config"
	"github.com/talgya/reptation/internal/ensemble"
	"github.com/talgya/reptation/internal/entropy"
	"github.com/talgya/reptation/internal/output"
	"github.com/talgya/reptation/internal/persistence"
)

// EnvRandomOrgKey enables random.org seeds when the config leaves seed at 0.
const EnvRandomOrgKey = "REPTATION_RANDOM_ORG_KEY"

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		outDir     = flag.String("out", "", "output directory (overrides config)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		workers    = flag.Int("workers", -1, "worker goroutines, 0 = GOMAXPROCS (overrides config)")
		serveAddr  = flag.String("serve", "", "serve stored results over HTTP on this address after the sweep")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Output = *outDir
	}
	if *dbPath != "" {
		cfg.Database = *dbPath
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}

	if *serveAddr != "" && cfg.Database == "" {
		slog.Error("-serve needs a database (-db or REPTATION_DB)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Seed == 0 {
		cfg.Seed = entropy.NewClient(os.Getenv(EnvRandomOrgKey)).Seed(ctx)
		slog.Info("drew fresh seed", "seed", cfg.Seed)
	}

	plans, err := cfg.Plans()
	if err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	reports, err := run(ctx, cfg, plans)
	summary(os.Stdout, reports)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("interrupted", "completed", len(reports), "planned", len(plans))
		} else {
			slog.Error("simulation failed", "error", err)
		}
		os.Exit(1)
	}

	if *serveAddr != "" {
		if err := serve(ctx, cfg.Database, *serveAddr); err != nil {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}
}

func serve(ctx context.Context, dbPath, addr string) error {
	db, err := persistence.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	srv := &api.Server{DB: db, Addr: addr}
	return srv.Serve(ctx)
}

// run executes plans in order and returns the reports that completed.
func run(ctx context.Context, cfg config.Config, plans []ensemble.Plan) ([]ensemble.Report, error) {
	writer, err := output.NewWriter(cfg.Output)
	if err != nil {
		return nil, err
	}
	defer writer.Close()
	slog.Info("writing data", "dir", writer.Dir())

	var (
		store ensemble.Store
		db    *persistence.DB
	)
	if cfg.Database != "" {
		db, err = persistence.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Database)
		store = db
	}

	runner := ensemble.NewRunner(writer, store)
	runner.Workers = cfg.Workers

	slog.Info("sweep starting",
		"ensembles", len(plans),
		"steps_per_run", humanize.Comma(int64(cfg.Steps)),
		"repeats", cfg.Repeats,
	)

	reports := make([]ensemble.Report, 0, len(plans))
	for _, plan := range plans {
		report, err := runner.Run(ctx, plan)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	if db != nil {
		if err := db.SaveMeta(api.MetaLastSweep, time.Now().UTC().Format(time.RFC3339)); err != nil {
			slog.Warn("failed to record sweep time", "error", err)
		}
	}
	return reports, nil
}

func summary(w io.Writer, reports []ensemble.Report) {
	if len(reports) == 0 {
		return
	}
	head := color.New(color.FgCyan, color.Bold)
	val := color.New(color.FgGreen)
	dim := color.New(color.Faint)

	head.Fprintln(w, "Results")
	for _, r := range reports {
		dim.Fprintf(w, "  %s  reptons=%d epsilon=%g runs=%d (%s)\n",
			r.ID, r.Plan.Reptons, r.Plan.Epsilon, len(r.Runs), r.Elapsed.Round(time.Millisecond))
		for _, a := range r.Aggregates {
			fmt.Fprintf(w, "    %-15s ", a.Kind)
			val.Fprintf(w, "%.6g", a.Mean)
			fmt.Fprintf(w, " ± %.3g\n", a.StdErr)
		}
	}
}
