package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faucetdb/askdb/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, used by serve and mcp

	// overrides sees only ASKDB_* variables and bound flags, never the
	// config file, so values from the file keep their ${ENV} expansion.
	overrides = newOverrides()
)

func newOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ASKDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "askdb",
		Short: "Ask your databases questions in plain language",
		Long: `askdb answers natural-language questions about your SQL databases.

A language model turns each question into a single read-only SELECT, askdb
checks it against its safety rules, caps the rows it can return, runs it and
summarizes the result. Use it from the terminal, over HTTP, or as an MCP
server for AI agents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./askdb.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.askdb)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("askdb")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.askdb")
	}

	viper.SetEnvPrefix("ASKDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}

// loadConfig reads the file viper located (if any) through the YAML loader
// so ${ENV} references expand, then layers the overrides on top.
func loadConfig() (*config.YAMLConfig, error) {
	cfg := config.DefaultYAMLConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			if !(cfgFile == "" && errors.Is(err, os.ErrNotExist)) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		} else {
			cfg = loaded
		}
	}
	applyOverrides(cfg, overrides)
	return cfg, nil
}

// applyOverrides copies settings present in v onto cfg.
func applyOverrides(cfg *config.YAMLConfig, v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	integer := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	str("server.host", &cfg.Server.Host)
	integer("server.port", &cfg.Server.Port)
	boolean("auth.required", &cfg.Auth.Required)
	str("auth.jwt_secret", &cfg.Auth.JWTSecret)
	str("llm.provider", &cfg.LLM.Provider)
	str("llm.model", &cfg.LLM.Model)
	str("llm.api_key", &cfg.LLM.APIKey)
	str("llm.base_url", &cfg.LLM.BaseURL)
	integer("ask.max_rows", &cfg.Ask.MaxRows)
	str("ask.timeout", &cfg.Ask.Timeout)
	str("ask.default_service", &cfg.Ask.DefaultService)
	str("logging.level", &cfg.Logging.Level)
	str("logging.format", &cfg.Logging.Format)
}
