package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/couchcryptid/fishtank-etl/internal/adapter/backend"
	"github.com/couchcryptid/fishtank-etl/internal/config"
	"github.com/couchcryptid/fishtank-etl/internal/dataset"
	"github.com/couchcryptid/fishtank-etl/internal/dimension"
	"github.com/couchcryptid/fishtank-etl/internal/observability"
	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
	"github.com/joho/godotenv"
	"github.com/klauspost/compress/gzip"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type exitCode int

const (
	exitCodeSuccess exitCode = 0
	exitCodeError   exitCode = 1
)

// env is the shared state every subcommand runs with.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	loader *warehouse.Loader
	close  func()
}

func run() exitCode {
	var (
		verbose bool
		envFile string
	)
	rootCmd := &cobra.Command{
		Use:           "load",
		Short:         "Load geoscience datasets into the fishtank warehouse.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to read before the environment")

	setup := func() (*env, error) {
		_ = godotenv.Load(envFile)
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger := newLogger(verbose)
		metrics := observability.NewMetrics()

		store, err := backend.Open(context.Background(), cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("open warehouse: %w", err)
		}
		dims := dimension.NewManager(dimension.NewKnownKeys(cfg.KnownKeyCacheSize), logger, metrics)
		return &env{
			cfg:    cfg,
			logger: logger,
			loader: warehouse.NewLoader(store, dims, logger, metrics),
			close:  store.Close,
		}, nil
	}

	rootCmd.AddCommand(
		newTaggingCmd(setup),
		newRasterCmd(setup),
		newBathymetryCmd(setup),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeError
	}
	return exitCodeSuccess
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// loadJobs loads each job in order, stopping at the first failure.
func loadJobs(ctx context.Context, e *env, jobs ...dataset.Job) error {
	for _, job := range jobs {
		res, err := e.loader.Load(ctx, job.Batch, job.Options)
		if err != nil {
			return err
		}
		e.logger.Debug("load complete", "table", res.Table, "facts", res.Facts, "new_keys", res.NewKeys)
	}
	return nil
}

// readFile opens path and hands it to read. Paths ending in .gz are
// decompressed on the fly.
func readFile(path string, read func(io.Reader) (dataset.Job, error)) (dataset.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataset.Job{}, err
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".gz") {
		return read(f)
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		return dataset.Job{}, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	return read(zr)
}
