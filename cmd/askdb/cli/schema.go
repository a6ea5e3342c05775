package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/faucetdb/askdb/internal/schema"
	"github.com/faucetdb/askdb/internal/service"
)

func newSchemaCmd() *cobra.Command {
	var (
		format    string
		tableName string
	)

	cmd := &cobra.Command{
		Use:   "schema <service>",
		Short: "Print the schema the language model sees for a service",
		Long: `Introspect a service and print its schema the way it is handed to the
language model: sensitive columns removed, custom instructions attached.`,
		Example: `  askdb schema shop
  askdb schema shop --format json --table orders`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd.OutOrStdout(), args[0], tableName, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().StringVar(&tableName, "table", "", "Show a single table only")

	return cmd
}

func runSchema(out io.Writer, name, tableName, format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q; use 'text' or 'json'", format)
	}

	ctx := context.Background()
	svc, err := findService(ctx, name)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog := service.NewCatalog(newRegistry(), newLogger(cfg.Logging))
	defer catalog.Registry().CloseAll()
	if err := catalog.Add(svc); err != nil {
		return fmt.Errorf("connect %q: %w", name, err)
	}

	sch, err := service.NewSchemaService(catalog, 0).Get(ctx, name)
	if err != nil {
		return fmt.Errorf("introspect schema: %w", err)
	}

	if tableName != "" {
		table, ok := sch.Table(tableName)
		if !ok {
			return fmt.Errorf("table %q not found in service %q", tableName, name)
		}
		sch = &schema.Schema{Tables: []schema.Table{table}}
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sch)
	}
	_, err = fmt.Fprintln(out, sch.Render())
	return err
}
