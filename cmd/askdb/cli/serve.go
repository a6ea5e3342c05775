package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/handler"
	amcp "github.com/faucetdb/askdb/internal/mcp"
	"github.com/faucetdb/askdb/internal/server"
	"github.com/faucetdb/askdb/internal/telemetry"
)

const banner = `
           _        _ _
  __ _ ___| | ____| | |__
 / _' / __| |/ / _' | '_ \
| (_| \__ \   < (_| | |_) |
 \__,_|___/_|\_\__,_|_.__/
`

func newServeCmd() *cobra.Command {
	var (
		port       int
		host       string
		dev        bool
		background bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the askdb API server",
		Long: `Start the HTTP server that answers questions against all configured database
services. The MCP endpoint is mounted at /mcp when mcp.enabled is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				return runServeBackground()
			}
			return runServe(dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")
	cmd.Flags().BoolVarP(&background, "background", "d", false, "Run the server in the background and return")

	overrides.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	overrides.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dev {
		cfg.Logging.Level = "debug"
	}
	logger := newLogger(cfg.Logging)

	ctx := context.Background()
	a, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	srvCfg, err := serverConfig(cfg)
	if err != nil {
		return err
	}

	deps := server.Deps{
		Catalog: a.catalog,
		Schemas: a.schemas,
		Asker:   a.asker,
		Store:   a.store,
		Auth:    a.auth,
		Logger:  logger,
	}
	if cfg.History.Enabled {
		deps.History = a.store
	}
	if cfg.MCP.Enabled {
		deps.MCP = amcp.NewMCPServer(a.catalog, a.schemas, a.asker, appVersion, logger).Handler()
	}
	srv := server.New(srvCfg, deps)

	hb := telemetry.NewHeartbeat(ctx, a.store, func() telemetry.Properties {
		return serverProperties(a, cfg)
	}, logger)
	hb.Start()
	defer hb.Shutdown()

	scheme := "http"
	if srvCfg.TLSCertFile != "" {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s:%d", scheme, srvCfg.Host, srvCfg.Port)

	fmt.Print(banner)
	fmt.Println()
	fmt.Printf("→ askdb %s\n", versionString())
	fmt.Printf("→ Listening on %s\n", base)
	fmt.Printf("→ Ask:        POST %s/api/v1/ask\n", base)
	fmt.Printf("→ OpenAPI:    %s/openapi.json\n", base)
	fmt.Printf("→ Metrics:    %s/metrics\n", base)
	if deps.MCP != nil {
		fmt.Printf("→ MCP:        %s/mcp\n", base)
	}
	fmt.Printf("→ Connected databases: %d\n", len(a.catalog.Names()))
	if a.modelErr != nil {
		fmt.Printf("→ Language model: not configured (%v)\n", a.modelErr)
	}
	fmt.Println()

	// ListenAndServe closes all connections on shutdown.
	return srv.ListenAndServe()
}

// serverConfig maps the server and auth sections onto the HTTP server config.
func serverConfig(cfg *config.YAMLConfig) (server.Config, error) {
	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.ShutdownTimeout = config.Duration(cfg.Server.ShutdownTimeout, srvCfg.ShutdownTimeout)
	if len(cfg.Server.CORS.Origins) > 0 {
		srvCfg.CORSOrigins = cfg.Server.CORS.Origins
	}
	if len(cfg.Server.CORS.Methods) > 0 {
		srvCfg.CORSMethods = cfg.Server.CORS.Methods
	}
	if cfg.Server.MaxBodySize != "" {
		size, err := config.ParseByteSize(cfg.Server.MaxBodySize)
		if err != nil {
			return srvCfg, fmt.Errorf("server.max_body_size: %w", err)
		}
		srvCfg.MaxBodySize = size
	}
	if srvCfg.MaxBodySize <= 0 {
		srvCfg.MaxBodySize = handler.DefaultMaxBodySize
	}
	srvCfg.AuthRequired = cfg.Auth.Required
	if cfg.Auth.APIKeyHeader != "" {
		srvCfg.APIKeyHeader = cfg.Auth.APIKeyHeader
	}
	srvCfg.AskRateLimit = cfg.Server.RateLimit.RequestsPerMinute
	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return srvCfg, fmt.Errorf("server.tls: cert_file and key_file are required when enabled")
		}
		srvCfg.TLSCertFile = cfg.Server.TLS.CertFile
		srvCfg.TLSKeyFile = cfg.Server.TLS.KeyFile
	}
	srvCfg.Version = versionString()
	return srvCfg, nil
}

func serverProperties(a *app, cfg *config.YAMLConfig) telemetry.Properties {
	services := a.catalog.List()
	drivers := make(map[string]bool)
	for _, svc := range services {
		drivers[svc.Driver] = true
	}
	dbTypes := make([]string, 0, len(drivers))
	for d := range drivers {
		dbTypes = append(dbTypes, d)
	}

	keys, _ := a.store.ListAPIKeys(context.Background())

	var features []string
	if cfg.MCP.Enabled {
		features = append(features, "mcp")
	}
	if cfg.Auth.Required {
		features = append(features, "auth")
	}
	if cfg.History.Enabled {
		features = append(features, "history")
	}
	if cfg.Server.TLS.Enabled {
		features = append(features, "tls")
	}

	return telemetry.Properties{
		Version:   versionString(),
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		DBTypes:   dbTypes,
		Services:  len(services),
		APIKeys:   len(keys) + len(cfg.Auth.APIKeys),
		Features:  features,
	}
}

// runServeBackground re-executes serve without --background, detached from
// the terminal, with output appended to the log file.
func runServeBackground() error {
	if pid, err := readPID(); err == nil && isProcessRunning(pid) {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	args := make([]string, 0, len(os.Args))
	for _, arg := range os.Args[1:] {
		if arg == "--background" || arg == "-d" {
			continue
		}
		args = append(args, arg)
	}

	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.Env = append(os.Environ(), "ASKDB_DATA_DIR="+resolveDataDir())
	setSysProcAttr(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := writePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	fmt.Printf("askdb server started in the background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath())
	fmt.Println("  Stop with: askdb stop")
	return child.Process.Release()
}

// localAddr turns a listen address into one a local client can dial.
func localAddr(host string, port int) string {
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, port)
}
