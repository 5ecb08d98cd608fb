package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/meetlink/internal/domain"
)

func newLoginCmd(app *app) *cobra.Command {
	var email string
	var password string

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange user credentials for a credential bundle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := app.authClient.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			app.store.Set(cmd.Context(), domain.CredentialBundle{
				AccessToken:  result.AccessToken,
				RefreshToken: result.RefreshToken,
				SubjectID:    result.SubjectID,
				IssuedAt:     app.clock.Now(),
				Lifetime:     domain.DefaultCredentialLifetime,
			})

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", result.SubjectID)
			return nil
		},
	}

	loginCmd.Flags().StringVar(&email, "email", "", "account email")
	loginCmd.Flags().StringVar(&password, "password", "", "account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	return loginCmd
}
