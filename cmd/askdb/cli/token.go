package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/service"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		Long: `Issue a JWT signed with the server's secret, for clients that send
'Authorization: Bearer <token>' instead of an API key.`,
		Example: `  askdb token --subject reporting-bot
  askdb token --subject ci --ttl 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd.OutOrStdout(), subject, ttl)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "askdb-cli", "Subject (sub claim) of the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: auth.jwt_expiry)")

	return cmd
}

func runToken(out io.Writer, subject string, ttl time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = config.Duration(cfg.Auth.JWTExpiry, time.Hour)
	}

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	secret, err := resolveJWTSecret(ctx, cfg.Auth.JWTSecret, store)
	if err != nil {
		return err
	}

	token, err := service.NewAuthService(store, secret, cfg.Auth.APIKeys).IssueJWT(ctx, subject, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
