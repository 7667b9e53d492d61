package main

import (
	"errors"
	"fmt"

	"github.com/phrazzld/scry-gen/internal/service/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(opts *globalOptions) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the protected API endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadWithLogOutput(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}

			tokens, err := auth.NewOperatorTokens(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(cmd.Context(), subject)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "Token subject recorded in audit logs")
	return cmd
}
