package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/knowledge-engine/errclass/internal/engine"
	"github.com/knowledge-engine/errclass/internal/storage"
)

func trainCmd(g *globals) *cobra.Command {
	var (
		corpus  corpusFlags
		maxLen  int
		pad     bool
		epochs  int
		history bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on a labelled NDJSON corpus and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			corpus.apply(cmd, cfg)
			if cmd.Flags().Changed("max-len") {
				cfg.Features.MaxLen = maxLen
			}
			if cmd.Flags().Changed("pad") {
				cfg.Features.Pad = pad
			}
			if cmd.Flags().Changed("epochs") {
				cfg.Training.Epochs = epochs
			}

			store, err := storage.Open(cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to open model store: %w", err)
			}
			defer store.Close()

			result, err := engine.NewTrainer(cfg, logger, store).Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if history {
				printHistory(out, result.History)
			}
			s := result.Snapshot
			fmt.Fprintf(out, "Model %s trained on %d records in %s (%d epochs)\n",
				s.ID, s.Training.Records, result.Duration.Round(time.Millisecond), s.Training.Epochs)
			fmt.Fprintf(out, "Final loss %.4f, validation loss %.4f\n", s.Training.Loss, s.Training.ValLoss)
			printVerdict(out, s.Training.LossRatio)
			return nil
		},
	}

	corpus.register(cmd)
	cmd.Flags().IntVar(&maxLen, "max-len", 0, "entries kept from each TF-IDF vector")
	cmd.Flags().BoolVar(&pad, "pad", false, "zero-pad each half of a feature row to max-len")
	cmd.Flags().IntVar(&epochs, "epochs", 0, "maximum training epochs")
	cmd.Flags().BoolVar(&history, "history", false, "print per-epoch metrics")
	return cmd
}
