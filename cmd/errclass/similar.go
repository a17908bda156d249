package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knowledge-engine/errclass/internal/corpus"
)

func similarCmd(g *globals) *cobra.Command {
	var (
		flags     corpusFlags
		callstack string
		k         int
	)

	cmd := &cobra.Command{
		Use:   "similar <error text>",
		Short: "List the training reports closest to an error report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if k <= 0 {
				k = cfg.Search.K
			}

			classifier, err := loadClassifier(cfg.Storage, cfg.Server.CacheSize, logger)
			if err != nil {
				return err
			}

			loader := corpus.NewLoader(logger, cfg.Corpus.MaxLineBytes)
			if _, err := classifier.IndexCorpus(cmd.Context(), loader, cfg.Corpus.Path, cfg.Corpus.MaxData, cfg.Search); err != nil {
				return err
			}

			results, err := classifier.Similar(strings.Join(args, " "), callstack, k)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No similar reports: the text shares no term with the vocabulary")
				return nil
			}
			table := newTable(out, "ID", "Category", "Similarity")
			for _, r := range results {
				table.Append([]string{strconv.FormatInt(r.ID, 10), r.Category, decimal(r.Score)})
			}
			table.Render()
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&callstack, "callstack", "", "callstack of the error")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of reports to list")
	return cmd
}
