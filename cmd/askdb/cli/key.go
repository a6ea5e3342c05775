package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/model"
	"github.com/faucetdb/askdb/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke API keys used to authenticate against the askdb HTTP API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		label   string
		expires time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  askdb key create --label "BI dashboard"
  askdb key create --label "CI pipeline" --expires 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(cmd.OutOrStdout(), label, expires)
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Human-readable label for the key")
	cmd.Flags().DurationVar(&expires, "expires", 0, "Lifetime of the key, e.g. 720h (default: never expires)")

	return cmd
}

func runKeyCreate(out io.Writer, label string, expires time.Duration) error {
	if expires < 0 {
		return fmt.Errorf("--expires must be positive")
	}

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	rawKey, prefix, err := service.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generate random key: %w", err)
	}

	apiKey := &model.APIKey{
		KeyHash:   config.HashAPIKey(rawKey),
		KeyPrefix: prefix,
		Label:     label,
		IsActive:  true,
	}
	if expires > 0 {
		exp := time.Now().UTC().Add(expires)
		apiKey.ExpiresAt = &exp
	}

	if err := store.CreateAPIKey(context.Background(), apiKey); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Fprintln(out, "API Key created:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Key:     %s\n", rawKey)
	if label != "" {
		fmt.Fprintf(out, "  Label:   %s\n", label)
	}
	if apiKey.ExpiresAt != nil {
		fmt.Fprintf(out, "  Expires: %s\n", apiKey.ExpiresAt.Local().Format(time.RFC1123))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(out io.Writer, jsonOutput bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	keys, err := store.ListAPIKeys(context.Background())
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Fprintln(out, "No API keys configured. Use 'askdb key create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-16s %-24s %-8s %-20s %-20s\n", "PREFIX", "LABEL", "ACTIVE", "EXPIRES", "LAST USED")
	fmt.Fprintf(out, "%-16s %-24s %-8s %-20s %-20s\n", "------", "-----", "------", "-------", "---------")
	for _, k := range keys {
		active := "yes"
		if !k.IsActive {
			active = "no"
		}
		fmt.Fprintf(out, "%-16s %-24s %-8s %-20s %-20s\n",
			k.KeyPrefix, k.Label, active, formatOptionalTime(k.ExpiresAt, "never"), formatOptionalTime(k.LastUsed, "-"))
	}

	return nil
}

func formatOptionalTime(t *time.Time, empty string) string {
	if t == nil {
		return empty
	}
	return t.Local().Format(time.DateTime)
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Deactivate an API key, preventing any further authenticated requests using that key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runKeyRevoke(out io.Writer, prefix string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	if err := store.RevokeAPIKeyByPrefix(context.Background(), prefix); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Fprintf(out, "Revoked API key with prefix %q\n", prefix)
	return nil
}
