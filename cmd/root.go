package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meetlink",
		Short:         "meetlink: authenticated realtime session agent for live meetings",
		Long:          "meetlink keeps a credential bundle fresh, watches a meeting surface for activity, and holds a realtime socket to the classification backend open exactly while a meeting runs.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newLogoutCmd(app),
		newSyncCmd(app),
		newStatusCmd(app),
		newRunCmd(app),
	)

	return rootCmd
}
