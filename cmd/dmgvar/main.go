package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rewired-gh/dmgvar/internal/compare"
	"github.com/rewired-gh/dmgvar/internal/config"
	"github.com/rewired-gh/dmgvar/internal/dist"
	"github.com/rewired-gh/dmgvar/internal/logger"
	"github.com/rewired-gh/dmgvar/internal/models"
	"github.com/rewired-gh/dmgvar/internal/rotation"
	"github.com/rewired-gh/dmgvar/internal/storage"
	"github.com/rewired-gh/dmgvar/internal/table"
	"github.com/rewired-gh/dmgvar/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	logger.Sync()
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dmgvar: %v\n", err)
		os.Exit(1)
	}
}

// flags holds the command line options that are not configuration overrides.
type flags struct {
	configPath string
	label      string
	compareRef string
	showRef    string
	list       bool
	limit      int
	minZ       float64
}

// latestRef selects the most recently saved run in --show and --compare.
const latestRef = "latest"

// bindings maps flag names to the configuration keys they override.
var bindings = map[string]string{
	"table":        "input.path",
	"strict":       "input.strict",
	"elapsed":      "engine.elapsed",
	"moments-only": "engine.moments_only",
	"roll-model":   "engine.roll_model",
	"workers":      "engine.workers",
	"log-level":    "logging.level",
	"notify":       "telegram.enabled",
	"save":         "storage.enabled",
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var f flags
	fs := pflag.NewFlagSet("dmgvar", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "", "Path to configuration file")
	fs.StringVarP(&f.label, "label", "l", "", "Label of the analyzed run (default: table file name)")
	fs.StringVar(&f.compareRef, "compare", "", "Compare the analyzed run against a stored run ID, label or \"latest\"")
	fs.StringVar(&f.showRef, "show", "", "Print a stored run by ID, label or \"latest\" and exit")
	fs.BoolVar(&f.list, "list", false, "List stored runs and exit")
	fs.IntVar(&f.limit, "limit", 20, "Number of runs printed by --list")
	fs.Float64Var(&f.minZ, "min-z", 0, "Only print compared groups whose |z| reaches this value")

	fs.StringP("table", "t", "", "Rotation table (.csv, .yaml, .yml or .json)")
	fs.Bool("strict", false, "Validate every table row")
	fs.Float64("elapsed", 1, "Fight duration in seconds for DPS figures")
	fs.Bool("moments-only", false, "Skip distribution grids")
	fs.String("roll-model", "lattice", "Damage roll model: lattice or continuous")
	fs.Int("workers", 0, "Concurrent action computations (0: GOMAXPROCS)")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.Bool("notify", false, "Send the report to Telegram")
	fs.Bool("save", false, "Store the analyzed run")

	if err := fs.Parse(args); err != nil {
		return err
	}

	v, err := config.New(f.configPath)
	if err != nil {
		return err
	}
	for name, key := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if f.configPath != "" {
		logger.Info("Configuration loaded from %s", f.configPath)
	}

	var store *storage.Storage
	if cfg.Storage.Enabled || f.list || f.showRef != "" || f.compareRef != "" {
		store, err = storage.New(cfg.Storage.DBPath, cfg.Storage.MaxRuns)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
	}

	switch {
	case f.list:
		runs, err := store.ListRuns(ctx, f.limit)
		if err != nil {
			return err
		}
		return printRuns(stdout, runs)
	case f.showRef != "":
		r, err := lookupRun(ctx, store, f.showRef)
		if err != nil {
			return err
		}
		return printRun(stdout, r)
	}

	return analyze(ctx, cfg, f, store, stdout)
}

func lookupRun(ctx context.Context, store *storage.Storage, ref string) (*models.Run, error) {
	if ref == latestRef {
		return store.LatestRun(ctx)
	}
	return store.GetRun(ctx, ref)
}

func analyze(ctx context.Context, cfg *config.Config, f flags, store *storage.Storage, stdout io.Writer) error {
	if cfg.Input.Path == "" {
		return errors.New("no rotation table: pass --table or set input.path")
	}

	conv, err := cfg.Character.Converter()
	if err != nil {
		return err
	}
	loader := &table.Loader{Converter: conv, Rate: cfg.Character.Rate(), Strict: cfg.Input.Strict}
	rows, err := loader.LoadFile(cfg.Input.Path)
	if err != nil {
		return err
	}
	logger.Info("Loaded %d rows from %s", len(rows), cfg.Input.Path)

	opts, err := cfg.RotationOptions()
	if err != nil {
		return err
	}
	started := time.Now()
	summary, err := rotation.Build(ctx, rows, opts)
	if err != nil {
		return fmt.Errorf("failed to analyze rotation: %w", err)
	}
	logger.Info("Analyzed %d actions in %d groups in %v", len(summary.Actions), len(summary.Groups), time.Since(started))

	label := f.label
	if label == "" {
		label = strings.TrimSuffix(filepath.Base(cfg.Input.Path), filepath.Ext(cfg.Input.Path))
	}
	snapshot := summary.Snapshot(label)
	if err := printRun(stdout, &snapshot); err != nil {
		return err
	}

	var (
		baseline *models.Run
		report   *compare.Report
	)
	if f.compareRef != "" {
		baseline, err = lookupRun(ctx, store, f.compareRef)
		if err != nil {
			return fmt.Errorf("failed to load baseline: %w", err)
		}
		report, err = compare.Runs(dist.NewEngine(opts.Dist), baseline, &snapshot)
		if err != nil {
			return err
		}
		if err := printComparison(stdout, baseline, &snapshot, report, f.minZ); err != nil {
			return err
		}
	}

	if cfg.Storage.Enabled {
		if err := store.SaveRun(ctx, &snapshot); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		logger.Info("Saved run %s", snapshot.ID)
		if removed, err := store.RotateRuns(ctx); err != nil {
			logger.Warn("Failed to rotate runs: %v", err)
		} else if removed > 0 {
			logger.Debug("Removed %d old runs", removed)
		}
	}

	if cfg.Telegram.Enabled {
		client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		if err := client.SendRun(&snapshot); err != nil {
			logger.Error("Failed to send Telegram report: %v", err)
		}
		if report != nil {
			if err := client.SendComparison(baseline, &snapshot, report); err != nil {
				logger.Error("Failed to send Telegram comparison: %v", err)
			}
		}
	}
	return nil
}
