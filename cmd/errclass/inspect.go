package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/knowledge-engine/errclass/internal/network"
	"github.com/knowledge-engine/errclass/internal/storage"
	"github.com/knowledge-engine/errclass/internal/tfidf"
)

func inspectCmd(g *globals) *cobra.Command {
	var (
		terms   int
		history bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Describe the stored model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.setup()
			if err != nil {
				return err
			}

			store, err := storage.Open(cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to open model store: %w", err)
			}
			defer store.Close()

			s, err := store.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			table := newTable(out, "Property", "Value")
			table.AppendBulk([][]string{
				{"ID", s.ID.String()},
				{"Created", s.CreatedAt.Format("2006-01-02 15:04:05 MST")},
				{"Storage", cfg.Storage.Backend},
				{"Categories", strconv.Itoa(len(s.Categories))},
				{"Vocabulary", strconv.Itoa(len(s.Terms))},
				{"Max length", strconv.Itoa(s.MaxLen)},
				{"Pad", strconv.FormatBool(s.Pad)},
				{"Layers", fmt.Sprint(lo.Map(s.Layers, func(l network.Layer, _ int) int { return l.Out }))},
				{"Records", strconv.Itoa(s.Training.Records)},
				{"Epochs", strconv.Itoa(s.Training.Epochs)},
			})
			table.Render()

			fmt.Fprintln(out)
			ct := newTable(out, "Label", "Category")
			for i, name := range s.Categories {
				ct.Append([]string{strconv.Itoa(i), name})
			}
			ct.Render()

			if terms > 0 {
				fmt.Fprintln(out)
				tt := newTable(out, "Index", "Term", "IDF")
				for _, t := range rarestTerms(s.Terms, terms) {
					tt.Append([]string{strconv.Itoa(t.Index), t.Term, decimal(t.IDF)})
				}
				tt.Render()
			}

			if history {
				fmt.Fprintln(out)
				printHistory(out, s.Training.History)
			}
			fmt.Fprintln(out)
			printVerdict(out, s.Training.LossRatio)
			return nil
		},
	}

	cmd.Flags().IntVar(&terms, "terms", 0, "list this many terms with the highest IDF")
	cmd.Flags().BoolVar(&history, "history", false, "print the training history")
	return cmd
}

// rarestTerms returns the n terms with the highest IDF, ties in index order.
func rarestTerms(terms []tfidf.Term, n int) []tfidf.Term {
	sorted := append([]tfidf.Term(nil), terms...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].IDF > sorted[j].IDF })
	return lo.Subset(sorted, 0, uint(n))
}
