package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	amcp "github.com/faucetdb/askdb/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that lets AI agents list services,
read schemas, validate SQL and ask questions. Supports stdio (default) and
Streamable HTTP transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for desktop MCP clients that launch askdb as a subprocess. Logs go
to stderr.

'askdb serve' also mounts the HTTP transport at /mcp when mcp.enabled is set.`,
		Example: `  askdb mcp                              # stdio mode
  askdb mcp --transport http --port 3001  # Streamable HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("transport") {
				transport = ""
			}
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http (default: mcp.transport)")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.MCP.Transport
	}
	if transport == "" {
		transport = "stdio"
	}
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}

	logger := newLogger(cfg.Logging)
	a, err := bootstrap(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := amcp.NewMCPServer(a.catalog, a.schemas, a.asker, versionString(), logger)

	if transport == "http" {
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
	}
	return mcpSrv.ServeStdio()
}
