// Package cmd provides the CLI commands for vidsearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/playbacklab/vidsearch/internal/config"
	"github.com/playbacklab/vidsearch/internal/embed"
	"github.com/playbacklab/vidsearch/internal/indexer"
	"github.com/playbacklab/vidsearch/internal/logging"
	"github.com/playbacklab/vidsearch/internal/registry"
)

// Version is stamped by the build.
var Version = "dev"

var (
	configPath string
	logLevel   string
)

// NewRootCmd creates the root command for the vidsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vidsearch",
		Short: "Lazy video-content indexer and semantic search engine",
		Long: `vidsearch indexes externally-hosted video content (captions, transcripts,
scene descriptions) from a content registry into an in-memory searchable
store, and serves ranked semantic search queries against it.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("vidsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newSuggestCmd())
	cmd.AddCommand(newSimilarCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// app bundles everything a subcommand needs, with a teardown that runs in
// reverse construction order.
type app struct {
	config  *config.Config
	logger  *slog.Logger
	manager *indexer.Manager
	cleanup []func()
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.manager != nil {
		_ = a.manager.Shutdown(ctx)
	}
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// buildApp constructs the full pipeline from configuration: logger, registry
// client, embedding processor, and manager. No global singletons; everything
// a command uses is built here and torn down by close.
func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	logCfg.WriteToStderr = false

	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("logging setup failed: %w", err)
	}
	slog.SetDefault(logger)

	a := &app{config: cfg, logger: logger}
	a.cleanup = append(a.cleanup, logCleanup)

	if cfg.Registry.Endpoint == "" {
		a.close()
		return nil, fmt.Errorf("registry endpoint is required (set registry.endpoint or VIDSEARCH_REGISTRY_ENDPOINT)")
	}

	reg, err := registry.NewHTTPClient(registry.HTTPConfig{
		Endpoint:          cfg.Registry.Endpoint,
		Timeout:           cfg.Registry.Timeout,
		CacheTTL:          cfg.Registry.CacheTTL,
		CacheSize:         cfg.Registry.CacheSize,
		RequestsPerSecond: cfg.Registry.RequestsPerSecond,
	}, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	proc, err := buildProcessor(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	manager, err := indexer.NewManager(cfg, reg, proc, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.manager = manager

	return a, nil
}

// buildProcessor selects the embedding processor: the remote NLP service
// when configured, the built-in static processor otherwise. Either way it is
// wrapped in an LRU document cache.
func buildProcessor(cfg *config.Config, logger *slog.Logger) (embed.Processor, error) {
	var inner embed.Processor
	if cfg.NLP.Endpoint != "" {
		http, err := embed.NewHTTPProcessor(embed.HTTPConfig{
			Endpoint: cfg.NLP.Endpoint,
			Timeout:  cfg.NLP.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		inner = http
	} else {
		logger.Info("no nlp endpoint configured, using static processor")
		inner = embed.NewStaticProcessor()
	}

	return embed.NewCachedProcessor(inner, cfg.NLP.CacheSize)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
