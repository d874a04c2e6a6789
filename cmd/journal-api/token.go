package main

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/auth"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTokenCommand() *cobra.Command {
	var (
		userID      string
		email       string
		displayName string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token for a local user",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.Auth.SigningSecret),
				Issuer:        appConfig.Auth.Issuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(userID, email, displayName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User identifier carried by the token")
	cmd.Flags().StringVar(&email, "email", "", "Optional user email")
	cmd.Flags().StringVar(&displayName, "name", "", "Optional display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to 12h)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
