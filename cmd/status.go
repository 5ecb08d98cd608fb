package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	statusrender "github.com/bnema/meetlink/internal/adapters/render/status"
)

func newStatusCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show credential freshness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bundle := app.store.Get(cmd.Context())

			out := statusrender.Render(bundle, statusrender.RenderOptions{
				Now:   app.clock.Now(),
				Grace: app.orchestrator.Grace(),
			})
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
