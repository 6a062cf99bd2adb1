package main

import (
	"errors"
	"fmt"
	"time"

	"ticketgate/internal/config"
	"ticketgate/internal/domain"
	"ticketgate/internal/infra/auth/token"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue or inspect shared-secret tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Mint a service token signed with TOKEN_KEY",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := requireSharedSecret(cfg); err != nil {
			return err
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		issuer, err := token.NewSelfIssuer([]byte(cfg.TokenKey), cfg.TokenIssuer,
			token.WithTTLs(ttl, token.DefaultUserTTL))
		if err != nil {
			return err
		}
		issued, err := issuer.Issue(cmd.Context(), domain.TokenRequest{})
		if err != nil {
			return err
		}
		log.Debug().Time("expires_at", issued.ExpiresAt).Msg("token issued")
		fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
		return nil
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify a shared-secret token and print its claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := requireSharedSecret(cfg); err != nil {
			return err
		}
		verifier, err := token.NewSharedSecretVerifier([]byte(cfg.TokenKey), cfg.TokenIssuer,
			token.WithLeeway(cfg.ClockSkew()))
		if err != nil {
			return err
		}
		identity, err := verifier.Verify(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "app:     %s\n", identity.App)
		if identity.Subject != "" {
			fmt.Fprintf(out, "subject: %s\n", identity.Subject)
		}
		fmt.Fprintf(out, "issuer:  %s\n", identity.Issuer)
		fmt.Fprintf(out, "expires: %s (in %s)\n", identity.ExpiresAt.Format(time.RFC3339),
			time.Until(identity.ExpiresAt).Round(time.Second))
		return nil
	},
}

func requireSharedSecret(cfg config.Config) error {
	if cfg.AuthMode != config.AuthModeSharedSecret {
		return errors.New("token commands require AUTH_MODE=shared_secret")
	}
	if cfg.TokenKey == "" {
		return errors.New("TOKEN_KEY is required")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd, tokenVerifyCmd)

	tokenIssueCmd.Flags().Duration("ttl", token.DefaultServiceTTL, "token lifetime")
}
