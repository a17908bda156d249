package main

import (
	"fmt"
	"strconv"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/knowledge-engine/errclass/internal/corpus"
)

func evaluateCmd(g *globals) *cobra.Command {
	var (
		flags  corpusFlags
		misses bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Predict every record of a corpus and count successes and failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)

			classifier, err := loadClassifier(cfg.Storage, cfg.Server.CacheSize, logger)
			if err != nil {
				return err
			}

			loader := corpus.NewLoader(logger, cfg.Corpus.MaxLineBytes)
			eval, err := classifier.Evaluate(cmd.Context(), loader, cfg.Corpus.Path, cfg.Corpus.MaxData)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			table := newTable(out, "Category", "Records", "Correct", "Accuracy")
			for _, c := range eval.PerCategory {
				acc := 0.0
				if c.Total > 0 {
					acc = float64(c.Correct) / float64(c.Total)
				}
				table.Append([]string{c.Category, strconv.Itoa(c.Total), strconv.Itoa(c.Correct), percent(acc)})
			}
			table.Render()

			if misses && len(eval.Misses) > 0 {
				fmt.Fprintln(out)
				mt := newTable(out, "ID", "Expected", "Predicted", "Confidence")
				for _, m := range eval.Misses {
					mt.Append([]string{strconv.FormatInt(m.ID, 10), m.Expected, m.Predicted, percent(m.Confidence)})
				}
				mt.Render()
			}

			fmt.Fprintf(out, "%s and %s (accuracy %s)\n",
				color.Green.Sprintf("%d successes", eval.Successes),
				color.Red.Sprintf("%d failures", eval.Failures),
				percent(eval.Accuracy()))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&misses, "misses", false, "list every misclassified record")
	return cmd
}
