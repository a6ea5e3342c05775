package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/model"
	"github.com/faucetdb/askdb/internal/query"
)

// Catalog tracks the configured database services and keeps their
// connections open in the registry.
type Catalog struct {
	registry *connector.Registry
	logger   *slog.Logger

	mu       sync.RWMutex
	services map[string]model.ServiceConfig
}

// NewCatalog creates an empty Catalog over registry.
func NewCatalog(registry *connector.Registry, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		registry: registry,
		logger:   logger,
		services: make(map[string]model.ServiceConfig),
	}
}

// ConnectionConfig maps a service definition onto connector settings.
func ConnectionConfig(svc model.ServiceConfig) connector.ConnectionConfig {
	return connector.ConnectionConfig{
		Driver:          svc.Driver,
		DSN:             svc.DSN,
		SchemaName:      svc.Schema,
		MaxOpenConns:    svc.Pool.MaxOpenConns,
		MaxIdleConns:    svc.Pool.MaxIdleConns,
		ConnMaxLifetime: svc.Pool.ConnMaxLifetime,
		ConnMaxIdleTime: svc.Pool.ConnMaxIdleTime,
		PrivateKeyPath:  svc.PrivateKeyPath,
	}
}

// Add connects svc and records it. A service with the same name is replaced.
func (c *Catalog) Add(svc model.ServiceConfig) error {
	if err := query.ValidateIdentifier(svc.Name); err != nil {
		return fmt.Errorf("invalid service name: %w", err)
	}
	if !c.registry.HasDriver(svc.Driver) {
		return fmt.Errorf("invalid driver %q (available: %v)", svc.Driver, c.registry.Drivers())
	}
	if err := c.registry.Connect(svc.Name, ConnectionConfig(svc)); err != nil {
		return err
	}

	c.mu.Lock()
	c.services[svc.Name] = svc
	c.mu.Unlock()

	c.logger.Info("service connected", "service", svc.Name, "driver", svc.Driver)
	return nil
}

// AddAll connects every active service, at most parallel at a time.
// Services that fail to connect are logged and skipped. It returns the
// number of services connected by this call.
func (c *Catalog) AddAll(ctx context.Context, svcs []model.ServiceConfig, parallel int) int {
	cfgs := make(map[string]connector.ConnectionConfig, len(svcs))
	byName := make(map[string]model.ServiceConfig, len(svcs))
	for _, svc := range svcs {
		if !svc.IsActive {
			continue
		}
		if err := query.ValidateIdentifier(svc.Name); err != nil {
			c.logger.Warn("skipping service", "service", svc.Name, "error", err)
			continue
		}
		cfgs[svc.Name] = ConnectionConfig(svc)
		byName[svc.Name] = svc
	}

	if err := c.registry.ConnectAll(ctx, cfgs, parallel); err != nil {
		c.logger.Warn("some services failed to connect", "error", err)
	}

	connected := 0
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range c.registry.ListServices() {
		if svc, ok := byName[name]; ok {
			c.services[name] = svc
			connected++
		}
	}
	return connected
}

// Remove disconnects and forgets a service.
func (c *Catalog) Remove(name string) error {
	c.mu.Lock()
	delete(c.services, name)
	c.mu.Unlock()
	return c.registry.Disconnect(name)
}

// Get returns the definition of a connected service.
func (c *Catalog) Get(name string) (model.ServiceConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.services[name]
	return svc, ok
}

// Connector returns the open connection for name.
func (c *Catalog) Connector(name string) (connector.Connector, error) {
	return c.registry.Get(name)
}

// List returns the connected services sorted by name, without DSNs.
func (c *Catalog) List() []model.ServiceConfig {
	c.mu.RLock()
	out := make([]model.ServiceConfig, 0, len(c.services))
	for _, svc := range c.services {
		svc.DSN = ""
		svc.PrivateKeyPath = ""
		out = append(out, svc)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the connected service names, sorted.
func (c *Catalog) Names() []string {
	return c.registry.ListServices()
}

// Registry exposes the underlying connector registry.
func (c *Catalog) Registry() *connector.Registry { return c.registry }
