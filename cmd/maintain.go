package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/stacklens/catalog-ingest/internal/resilience"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		fmt.Println("schema up to date")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired ingestion cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.DeleteExpiredIngestions(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d expired cache entr%s\n", n, plural(n, "y", "ies"))
		return nil
	},
}

var (
	deadLetterTenant string
	deadLetterClass  string
)

var deadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "List documents whose ingestion failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if deadLetterTenant == "" {
			return eris.New("--tenant is required")
		}

		env, err := initEnv(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Store.ListDeadLetters(cmd.Context(), deadLetterTenant, resilience.DLQFilter{ErrorType: deadLetterClass})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no dead letters")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-9s  %-8s  %s\n", e.LastFailedAt.Format("2006-01-02 15:04"), e.ErrorType, e.FailedStage, e.Document)
			fmt.Printf("    %s\n", e.Error)
		}
		return nil
	},
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	deadLettersCmd.Flags().StringVar(&deadLetterTenant, "tenant", "", "tenant id")
	deadLettersCmd.Flags().StringVar(&deadLetterClass, "class", "", "filter by error class (transient or permanent)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(deadLettersCmd)
}
