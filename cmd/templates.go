package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var templatesTenant string

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage learned extraction templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if templatesTenant == "" {
			return eris.New("--tenant is required")
		}

		env, err := initEnv(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		templates, err := env.Store.ListTemplates(cmd.Context(), templatesTenant)
		if err != nil {
			return err
		}
		if len(templates) == 0 {
			fmt.Println("no templates")
			return nil
		}
		for _, tpl := range templates {
			fmt.Printf("%s  %-30s  uses=%d  accuracy=%.2f  mappings=%d\n",
				tpl.ID, tpl.Name, tpl.UsageCount, tpl.Accuracy(), len(tpl.Mappings))
		}
		return nil
	},
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.DeleteTemplate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	templatesCmd.PersistentFlags().StringVar(&templatesTenant, "tenant", "", "tenant identifier")
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesDeleteCmd)
	rootCmd.AddCommand(templatesCmd)
}
