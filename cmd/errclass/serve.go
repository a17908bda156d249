package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knowledge-engine/errclass/internal/api"
	"github.com/knowledge-engine/errclass/internal/corpus"
	"github.com/knowledge-engine/errclass/internal/engine"
	"github.com/knowledge-engine/errclass/internal/storage"
)

func serveCmd(g *globals) *cobra.Command {
	var (
		flags corpusFlags
		addr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if addr != "" {
				cfg.Server.Addr = addr
			}

			store, err := storage.Open(cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to open model store: %w", err)
			}
			defer store.Close()

			classifier := engine.NewClassifier(logger, cfg.Server.CacheSize)
			err = classifier.LoadFrom(store)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				logger.Warn("No trained model found; predictions will fail until one is trained")
			case err != nil:
				return err
			}

			if classifier.Loaded() && cfg.Search.Enabled {
				if _, statErr := os.Stat(cfg.Corpus.Path); statErr == nil {
					loader := corpus.NewLoader(logger, cfg.Corpus.MaxLineBytes)
					if _, err := classifier.IndexCorpus(cmd.Context(), loader, cfg.Corpus.Path, cfg.Corpus.MaxData, cfg.Search); err != nil {
						logger.WithError(err).Warn("Similarity index not built")
					}
				} else {
					logger.WithField("path", cfg.Corpus.Path).Warn("Corpus not found; similarity search disabled")
				}
			}

			return api.NewServer(classifier, cfg, logger).Start(cmd.Context())
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SERVER_ADDR)")
	return cmd
}
