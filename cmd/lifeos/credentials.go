package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/lifeos/config"
	"github.com/mohammad-safakhou/lifeos/internal/credentials"
	"github.com/mohammad-safakhou/lifeos/internal/store"
)

func credentialsCMD(cfgPath *string) *cobra.Command {
	var user, provider, access, refresh string
	var expiresIn time.Duration
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Store a connector token used by webhook action executors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if !cfg.Storage.Postgres.Configured() {
				return fmt.Errorf("%s requires storage.postgres", cmd.Name())
			}
			st, err := store.NewWithDSN(cmd.Context(), cfg.Storage.Postgres.DSN())
			if err != nil {
				return err
			}
			defer st.Close()
			creds, err := credentials.New(st, cfg.Credentials.SecretKey)
			if err != nil {
				return err
			}
			tok := credentials.Token{AccessToken: access, RefreshToken: refresh}
			if expiresIn > 0 {
				tok.Expiry = time.Now().Add(expiresIn).UTC()
			}
			if err := creds.Save(cmd.Context(), user, provider, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s credentials for %s\n", provider, user)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&provider, "provider", "", "connector name referenced by executors.actions.*.provider")
	cmd.Flags().StringVar(&access, "access-token", "", "access token")
	cmd.Flags().StringVar(&refresh, "refresh-token", "", "refresh token (kept from the stored token when empty)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "access token lifetime")
	for _, f := range []string{"user", "provider", "access-token"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
