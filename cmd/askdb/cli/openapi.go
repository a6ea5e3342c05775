package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/askdb/internal/handler"
	"github.com/faucetdb/askdb/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		outputFile string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "openapi [service]",
		Short: "Generate OpenAPI specification",
		Long: `Generate the OpenAPI 3.1 document for the askdb HTTP API: the ask, validate
and schema operations of each service, plus component schemas describing the
result rows of every table and view. Without a service name all services are
included.`,
		Example: `  askdb openapi                       # all services
  askdb openapi shop                  # a single service
  askdb openapi -o openapi.json       # write to file`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceName := ""
			if len(args) > 0 {
				serviceName = args[0]
			}
			return runOpenAPI(cmd.OutOrStdout(), serviceName, baseURL, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL in the document (default: from server.host and server.port)")

	return cmd
}

func runOpenAPI(out io.Writer, serviceName, baseURL, outputFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Stdout carries the document.
	if cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	logger := newLogger(cfg.Logging)

	ctx := context.Background()
	a, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	specs := handler.ServiceSpecs(ctx, a.catalog, a.schemas)
	if serviceName != "" {
		var picked []openapi.ServiceSpec
		for _, s := range specs {
			if s.Name == serviceName {
				picked = append(picked, s)
			}
		}
		if len(picked) == 0 {
			return fmt.Errorf("service %q not found or not connected", serviceName)
		}
		specs = picked
	}

	if baseURL == "" {
		baseURL = "http://" + localAddr(cfg.Server.Host, cfg.Server.Port)
	}

	data, err := json.MarshalIndent(openapi.Generate(baseURL, versionString(), specs), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", outputFile, err)
		}
		fmt.Fprintf(out, "Wrote %s (%d services)\n", outputFile, len(specs))
		return nil
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
