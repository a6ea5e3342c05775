package service

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/faucetdb/askdb/internal/schema"
)

const (
	// DefaultSchemaTTL is how long an introspected schema is reused.
	DefaultSchemaTTL = 5 * time.Minute
	maxCachedSchemas = 256
)

// SchemaService introspects service schemas and caches the sanitized
// result per service. Concurrent misses for the same service share one
// introspection.
type SchemaService struct {
	catalog *Catalog
	cache   *lru.LRU[string, *schema.Schema]
	group   singleflight.Group
}

// NewSchemaService creates a SchemaService. A ttl of zero uses DefaultSchemaTTL.
func NewSchemaService(catalog *Catalog, ttl time.Duration) *SchemaService {
	if ttl <= 0 {
		ttl = DefaultSchemaTTL
	}
	return &SchemaService{
		catalog: catalog,
		cache:   lru.NewLRU[string, *schema.Schema](maxCachedSchemas, nil, ttl),
	}
}

// Get returns the schema shown to the model for service name: sensitive
// columns removed and the service's custom instructions attached.
func (s *SchemaService) Get(ctx context.Context, name string) (*schema.Schema, error) {
	if sch, ok := s.cache.Get(name); ok {
		return sch, nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		if sch, ok := s.cache.Get(name); ok {
			return sch, nil
		}
		sch, err := s.load(ctx, name)
		if err != nil {
			return nil, err
		}
		s.cache.Add(name, sch)
		return sch, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.Schema), nil
}

func (s *SchemaService) load(ctx context.Context, name string) (*schema.Schema, error) {
	conn, err := s.catalog.Connector(name)
	if err != nil {
		return nil, err
	}
	raw, err := conn.IntrospectSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect schema for %q: %w", name, err)
	}
	if svc, ok := s.catalog.Get(name); ok {
		raw.MarkSensitive(svc.SensitiveColumns)
		if svc.CustomInstructions != "" {
			raw.CustomInstructions = svc.CustomInstructions
		}
	}
	return raw.Sanitize(), nil
}

// Invalidate drops the cached schema for name.
func (s *SchemaService) Invalidate(name string) {
	s.cache.Remove(name)
}

// InvalidateAll drops every cached schema.
func (s *SchemaService) InvalidateAll() {
	s.cache.Purge()
}
