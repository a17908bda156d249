package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

func predictCmd(g *globals) *cobra.Command {
	var (
		callstack string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "predict <error text>",
		Short: "Classify a single error report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}

			classifier, err := loadClassifier(cfg.Storage, cfg.Server.CacheSize, logger)
			if err != nil {
				return err
			}

			prediction, err := classifier.Predict(strings.Join(args, " "), callstack)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(prediction)
			}

			fmt.Fprintf(out, "%s (%s)\n", color.New(color.FgCyan, color.OpBold).Render(prediction.Category), percent(prediction.Confidence))
			table := newTable(out, "Category", "Confidence")
			for _, p := range prediction.AllPredictions {
				table.Append([]string{p.Category, percent(p.Confidence)})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&callstack, "callstack", "", "callstack of the error")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the prediction as JSON")
	return cmd
}
