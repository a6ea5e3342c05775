package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/connector"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage askdb configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default askdb.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVarP(&path, "output", "o", "askdb.yaml", "Path of the file to create")

	return cmd
}

func runConfigInit(out io.Writer, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out, "Set OPENAI_API_KEY (or edit the llm section), add databases with 'askdb db add', then run 'askdb serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		Long:  "Print the configuration after defaults, the config file and ASKDB_* overrides are applied. Secrets are redacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runConfigShow(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if path := viper.ConfigFileUsed(); path != "" {
		fmt.Fprintf(out, "# Config file: %s\n", path)
	} else {
		fmt.Fprintln(out, "# Config file: (none found, using defaults)")
	}

	data, err := yaml.Marshal(redactConfig(cfg))
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

const redacted = "********"

// redactConfig returns a copy of cfg safe to print.
func redactConfig(cfg *config.YAMLConfig) *config.YAMLConfig {
	c := *cfg
	if c.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = redacted
	}
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = redacted
	}
	if len(c.Auth.APIKeys) > 0 {
		keys := make([]string, len(c.Auth.APIKeys))
		for i := range keys {
			keys[i] = redacted
		}
		c.Auth.APIKeys = keys
	}
	c.Services = make([]config.ServiceYAML, len(cfg.Services))
	for i, svc := range cfg.Services {
		svc.DSN = connector.RedactDSN(svc.DSN)
		c.Services[i] = svc
	}
	return &c
}
