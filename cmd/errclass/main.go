package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knowledge-engine/errclass/internal/config"
	"github.com/knowledge-engine/errclass/internal/engine"
	"github.com/knowledge-engine/errclass/internal/logging"
	"github.com/knowledge-engine/errclass/internal/storage"
)

// globals holds the persistent flags shared by every command
type globals struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "errclass",
		Short:         "Classify error reports with a TF-IDF network",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "TOML config file (environment variables still win)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(
		trainCmd(g),
		evaluateCmd(g),
		predictCmd(g),
		similarCmd(g),
		serveCmd(g),
		inspectCmd(g),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger
func (g *globals) setup() (*config.Config, *logrus.Entry, error) {
	var cfg *config.Config
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(g.configPath); err != nil {
			return nil, nil, err
		}
	} else {
		var err error
		if cfg, err = config.Load(); err != nil {
			return nil, nil, err
		}
	}

	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// corpusFlags are the corpus overrides accepted by several commands
type corpusFlags struct {
	path    string
	maxData int
}

func (f *corpusFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "corpus", "", "NDJSON corpus path (overrides CORPUS_PATH)")
	cmd.Flags().IntVar(&f.maxData, "max-data", 0, "read at most this many categorised records, 0 for all")
}

func (f *corpusFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if f.path != "" {
		cfg.Corpus.Path = f.path
	}
	if cmd.Flags().Changed("max-data") {
		cfg.Corpus.MaxData = f.maxData
	}
}

// loadClassifier opens the configured store and loads its model
func loadClassifier(cfg config.StorageConfig, cacheSize int, logger *logrus.Entry) (*engine.Classifier, error) {
	store, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open model store: %w", err)
	}
	defer store.Close()

	classifier := engine.NewClassifier(logger, cacheSize)
	if err := classifier.LoadFrom(store); err != nil {
		return nil, err
	}
	return classifier, nil
}
