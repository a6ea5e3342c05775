package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/llm"
	"github.com/faucetdb/askdb/internal/model"
	"github.com/faucetdb/askdb/internal/service"
)

// connectParallelism bounds concurrent service connections at startup.
const connectParallelism = 4

// app is the wiring shared by serve, mcp and the one-shot commands.
type app struct {
	cfg      *config.YAMLConfig
	logger   *slog.Logger
	store    *config.Store
	registry *connector.Registry
	catalog  *service.Catalog
	schemas  *service.SchemaService
	asker    *service.AskService
	auth     *service.AuthService

	// modelErr is why no model is configured, if none is.
	modelErr error
}

// bootstrap loads the configuration, opens the store, connects every
// service from the file and the store, and builds the services.
func bootstrap(ctx context.Context, cfg *config.YAMLConfig, logger *slog.Logger) (*app, error) {
	store, err := openConfigStore()
	if err != nil {
		return nil, fmt.Errorf("init config store: %w", err)
	}
	logger.Debug("config store initialized", "path", resolveDataDir())

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: newRegistry(),
	}
	a.catalog = service.NewCatalog(a.registry, logger)

	services, err := collectServices(ctx, cfg, store)
	if err != nil {
		logger.Warn("failed to load services from store", "error", err)
	}
	connected := a.catalog.AddAll(ctx, services, connectParallelism)
	logger.Info("services connected", "connected", connected, "configured", len(services))

	a.schemas = service.NewSchemaService(a.catalog, config.Duration(cfg.Ask.SchemaCacheTTL, 0))

	m, err := llm.New(cfg.LLM.ToLLM())
	if err != nil {
		a.modelErr = err
		logger.Warn("no language model configured; asks will fail", "error", err)
		m = nil
	}

	a.asker = service.NewAskService(a.catalog, a.schemas, m, service.AskDefaults{
		MaxRows:               cfg.Ask.MaxRows,
		Timeout:               config.Duration(cfg.Ask.Timeout, 0),
		FormatResults:         cfg.Ask.FormatResults,
		CancelOnTimeout:       cfg.Ask.CancelOnTimeout,
		FallbackOnFormatError: cfg.Ask.FallbackOnFormatError,
		DefaultService:        cfg.Ask.DefaultService,
	}, store, service.HistoryOptions{
		Enabled:    cfg.History.Enabled,
		MaxEntries: cfg.History.MaxEntries,
	}, logger)

	secret, err := resolveJWTSecret(ctx, cfg.Auth.JWTSecret, store)
	if err != nil {
		store.Close()
		a.registry.CloseAll()
		return nil, err
	}
	a.auth = service.NewAuthService(store, secret, cfg.Auth.APIKeys)

	return a, nil
}

// Close disconnects every service and closes the store.
func (a *app) Close() {
	a.registry.CloseAll()
	a.store.Close()
}

// collectServices merges services from the config file with those added
// through the CLI or the system API. The file wins on a name clash.
func collectServices(ctx context.Context, cfg *config.YAMLConfig, store *config.Store) ([]model.ServiceConfig, error) {
	out := make([]model.ServiceConfig, 0, len(cfg.Services))
	seen := make(map[string]bool, len(cfg.Services))
	for _, svc := range cfg.Services {
		out = append(out, svc.ToModel())
		seen[svc.Name] = true
	}

	stored, err := store.ListServices(ctx)
	if err != nil {
		return out, err
	}
	for _, svc := range stored {
		if !seen[svc.Name] {
			out = append(out, svc)
		}
	}
	return out, nil
}

// resolveJWTSecret returns the configured secret, or a random one generated
// on first use and kept in the store so tokens survive restarts.
func resolveJWTSecret(ctx context.Context, configured string, store *config.Store) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if secret, err := store.GetSetting(ctx, "jwt_secret"); err == nil && secret != "" {
		return secret, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	secret := hex.EncodeToString(b)
	if err := store.SetSetting(ctx, "jwt_secret", secret); err != nil {
		return "", fmt.Errorf("save jwt secret: %w", err)
	}
	return secret, nil
}
