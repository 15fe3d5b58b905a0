// Package main implements the zipcorpus binary: it generates archives of
// synthetic records and aggregates them into CSV tables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zipcorpus/zipcorpus/internal/config"
	"github.com/zipcorpus/zipcorpus/internal/logging"
	"github.com/zipcorpus/zipcorpus/internal/manifest"
	"github.com/zipcorpus/zipcorpus/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configFile string
	dataDir    string
	workers    int
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "zipcorpus",
		Short: "Generate zip archives of synthetic records and aggregate them into CSV tables",
		Long: `zipcorpus writes numbered zip archives of XML-like records, each with a
unique identifier, a level and a list of child objects, then extracts them
into two tables: 1.csv (id, level) and 2.csv (id, object_name).

Environment variables use the ZIPCORPUS_ prefix, e.g. ZIPCORPUS_DATA_DIR,
ZIPCORPUS_WORKERS, ZIPCORPUS_MANIFEST_ENABLED, ZIPCORPUS_STORAGE_TYPE.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "Directory holding archives and tables")
	pf.IntVar(&flags.workers, "workers", 0, "Worker pool size (0 means one per CPU)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newGenerateCmd(flags),
		newAggregateCmd(flags),
		newRunCmd(flags),
		newVerifyCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig layers defaults, the config file, the environment and the
// command line flags, in increasing priority.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(flags.configFile)
		if err != nil {
			return nil, err
		}
	}

	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = flags.workers
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session holds what a command needs once configuration is loaded.
type session struct {
	cfg       *config.Config
	logger    *zap.Logger
	catalog   *manifest.SQLiteCatalog
	publisher *storage.Publisher
}

func setup(cmd *cobra.Command, cfg *config.Config) (*session, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	rt := &session{cfg: cfg, logger: logger}

	if cfg.Manifest.Enabled {
		catalog, err := manifest.NewCatalog(cfg.Manifest.Path)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		rt.catalog = catalog
	}

	store, err := storage.Open(cmd.Context(), cfg.Storage, logger)
	if err != nil {
		rt.close()
		return nil, err
	}
	if store != nil {
		rt.publisher = storage.NewPublisher(store, cfg.Storage.Prefix, cfg.Workers, logger)
	}

	logger.Debug("configuration loaded",
		zap.String("data_dir", cfg.DataDir),
		zap.String("output_dir", cfg.Aggregate.OutputDir),
		zap.Int("workers", cfg.Workers),
		zap.Bool("manifest", cfg.Manifest.Enabled),
		zap.String("storage", cfg.Storage.Type))
	return rt, nil
}

func (rt *session) close() {
	if rt.catalog != nil {
		if err := rt.catalog.Close(); err != nil {
			rt.logger.Warn("failed to close manifest", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}
