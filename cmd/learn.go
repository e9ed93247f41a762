package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/stacklens/catalog-ingest/internal/learn"
)

var (
	learnTenant   string
	learnSession  string
	learnTemplate string
)

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Mine correction patterns and update template baselines",
	Long:  "Reads stored corrections, extracts recurring value patterns, and folds the observed accuracy back into the matched extraction template.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if learnTenant == "" {
			return eris.New("--tenant is required")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		corrections, err := env.Store.ListCorrections(ctx, learnTenant, learnSession)
		if err != nil {
			return err
		}
		if len(corrections) == 0 {
			fmt.Println("no corrections recorded")
			return nil
		}

		learner := learn.NewLearner(cfg.Learn.MinPatternSupport)
		result := learner.Learn(corrections, len(corrections))

		fmt.Printf("analyzed %d correction(s)\n", len(corrections))
		for _, p := range result.Patterns {
			fmt.Printf("  pattern %s: %q -> %q (seen %d times)\n", p.Field, p.From, p.To, p.Count)
		}
		for field, baseline := range result.Baselines {
			fmt.Printf("  baseline %s: %.2f\n", field, baseline)
		}

		if learnTemplate == "" {
			return nil
		}

		tpl, err := env.Store.GetTemplate(ctx, learnTemplate)
		if err != nil {
			return err
		}
		accuracy := 1.0 - float64(len(result.Patterns))/float64(len(corrections)+1)
		learner.UpdateTemplate(tpl, result, accuracy)
		if err := env.Store.SaveTemplate(ctx, tpl); err != nil {
			return err
		}
		fmt.Printf("updated template %s (accuracy now %.2f over %d uses)\n",
			tpl.ID, tpl.Accuracy(), tpl.UsageCount)
		return nil
	},
}

func init() {
	learnCmd.Flags().StringVar(&learnTenant, "tenant", "", "tenant identifier (required)")
	learnCmd.Flags().StringVar(&learnSession, "session", "", "restrict to one review session")
	learnCmd.Flags().StringVar(&learnTemplate, "template", "", "template to update with the batch outcome")
	rootCmd.AddCommand(learnCmd)
}
