package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/pipeline"
)

var (
	ingestTenant string
	ingestDryRun bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest catalog documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestTenant == "" {
			return eris.New("--tenant is required")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, printProgress)
		if err != nil {
			return err
		}
		defer env.Close()

		docs := make([]pipeline.Document, 0, len(args))
		for _, path := range args {
			doc, err := pipeline.LoadDocument(path)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}

		steering := env.Sessions.Steering(ctx, ingestTenant)
		result, err := env.Pipeline.Run(ctx, ingestTenant, docs, steering)
		if err != nil {
			return err
		}

		review := 0
		for _, item := range result.Items {
			if len(item.FieldsNeedingReview()) > 0 || item.OverallConfidence() < cfg.Session.ReviewThreshold {
				review++
			}
		}

		fmt.Printf("\nIngested %d document(s) in %s\n", len(docs), result.Duration.Round(1e6))
		fmt.Printf("  items:            %d\n", len(result.Items))
		fmt.Printf("  needs review:     %d\n", review)
		fmt.Printf("  excluded:         %d\n", len(result.Excluded))
		fmt.Printf("  duplicate groups: %d\n", len(result.Groups))
		fmt.Printf("  relationships:    %d\n", len(result.Report.Relationships))
		fmt.Printf("  inconsistencies:  %d\n", len(result.Report.Inconsistencies))
		for _, w := range result.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		for _, inc := range result.Report.Inconsistencies {
			fmt.Printf("  %s: %s\n", inc.Severity, inc.Message)
		}

		if ingestDryRun {
			fmt.Println("\ndry run, nothing persisted")
			return nil
		}

		n, err := env.Store.SaveItems(ctx, result.Items)
		if err != nil {
			return err
		}
		fmt.Printf("\nsaved %d item(s)\n", n)
		if review > 0 {
			fmt.Printf("%d item(s) flagged for review; run `catalog-ingest serve` to review them\n", review)
		}
		return nil
	},
}

func printProgress(ev pipeline.Event) {
	switch ev.Stage {
	case pipeline.StageFailed:
		zap.L().Warn("document failed", zap.String("document", ev.Document), zap.Error(ev.Err))
	case pipeline.StageCached:
		zap.L().Info("replayed from cache", zap.String("document", ev.Document), zap.Int("items", ev.Items))
	case pipeline.StageExtract:
		zap.L().Info("extracted", zap.String("document", ev.Document), zap.Int("items", ev.Items))
	}
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "tenant identifier (required)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "extract and validate without persisting")
	rootCmd.AddCommand(ingestCmd)
}
