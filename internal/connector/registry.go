package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrServiceNotFound is returned for names that have no active connection.
var ErrServiceNotFound = errors.New("service not found")

// Factory is a function that creates a new Connector instance.
type Factory func() Connector

// Registry manages connector factories and active connections.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	active    map[string]Connector // keyed by service name
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		active:    make(map[string]Connector),
	}
}

// RegisterDriver registers a connector factory for a driver type.
func (r *Registry) RegisterDriver(driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// HasDriver reports whether a factory is registered for driver.
func (r *Registry) HasDriver(driver string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[driver]
	return ok
}

// Connect creates a new connector for the given driver and connects it.
// An existing connection under the same name is closed and replaced.
func (r *Registry) Connect(serviceName string, cfg ConnectionConfig) error {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Driver]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unsupported driver: %s (available: %v)", cfg.Driver, r.Drivers())
	}

	// Dial outside the lock so slow databases do not block lookups.
	conn := factory()
	cfg.DSN = SanitizeDSN(cfg.Driver, cfg.DSN)
	if err := conn.Connect(cfg); err != nil {
		return fmt.Errorf("failed to connect service %q: %w", serviceName, err)
	}

	r.mu.Lock()
	existing, had := r.active[serviceName]
	r.active[serviceName] = conn
	r.mu.Unlock()

	if had {
		_ = existing.Disconnect()
	}
	return nil
}

// ConnectAll connects every service in cfgs, at most limit at a time
// (limit <= 0 means unbounded). A failing service does not stop the
// others; all failures are joined into the returned error.
func (r *Registry) ConnectAll(ctx context.Context, cfgs map[string]ConnectionConfig, limit int) error {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	var (
		mu   sync.Mutex
		errs []error
	)
	for name, cfg := range cfgs {
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				err = r.Connect(name, cfg)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Get returns the connector for a service.
func (r *Registry) Get(serviceName string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.active[serviceName]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrServiceNotFound, serviceName, r.activeServices())
	}
	return conn, nil
}

// Disconnect removes and disconnects a service.
func (r *Registry) Disconnect(serviceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.active[serviceName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrServiceNotFound, serviceName)
	}

	err := conn.Disconnect()
	delete(r.active, serviceName)
	return err
}

// CloseAll disconnects all services.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, conn := range r.active {
		_ = conn.Disconnect()
		delete(r.active, name)
	}
}

// ListServices returns active service names, sorted.
func (r *Registry) ListServices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeServices()
}

// PingAll pings every active service and returns the failures by name.
func (r *Registry) PingAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	conns := make(map[string]Connector, len(r.active))
	for name, conn := range r.active {
		conns[name] = conn
	}
	r.mu.RUnlock()

	failed := make(map[string]error)
	for name, conn := range conns {
		if err := conn.Ping(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}

// Drivers returns the registered driver names, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	drivers := make([]string, 0, len(r.factories))
	for d := range r.factories {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	return drivers
}

func (r *Registry) activeServices() []string {
	names := make([]string, 0, len(r.active))
	for n := range r.active {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
