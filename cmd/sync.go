package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Force a credential refresh exchange now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			refreshed, err := app.orchestrator.RequestRefresh(cmd.Context())
			if err != nil {
				return err
			}
			if refreshed {
				fmt.Fprintln(cmd.OutOrStdout(), "Credentials refreshed")
			}
			return nil
		},
	}
}
