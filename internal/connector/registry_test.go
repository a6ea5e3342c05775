package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/askdb/internal/schema"
)

// mockConnector implements Connector for testing without a real database.
type mockConnector struct {
	connected    bool
	disconnected bool
	cfg          ConnectionConfig
	pingErr      error
}

func (m *mockConnector) Connect(cfg ConnectionConfig) error {
	if cfg.DSN == "fail" {
		return fmt.Errorf("mock connect failure")
	}
	m.connected = true
	m.cfg = cfg
	return nil
}
func (m *mockConnector) Disconnect() error {
	m.disconnected = true
	m.connected = false
	return nil
}
func (m *mockConnector) Ping(_ context.Context) error { return m.pingErr }
func (m *mockConnector) DB() *sqlx.DB                 { return nil }
func (m *mockConnector) IntrospectSchema(_ context.Context) (*schema.Schema, error) {
	return &schema.Schema{}, nil
}
func (m *mockConnector) DriverName() string                 { return "mock" }
func (m *mockConnector) Dialect() string                    { return "Mock SQL" }
func (m *mockConnector) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (m *mockConnector) SupportsReadOnlyTx() bool           { return true }

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if len(r.ListServices()) != 0 {
		t.Error("new registry should have no services")
	}
}

func TestRegisterDriver(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	if _, ok := r.factories["mock"]; !ok {
		t.Error("expected mock driver to be registered")
	}
}

func TestConnectAndGet(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	err := r.Connect("test-svc", ConnectionConfig{Driver: "mock", DSN: "test-dsn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn, err := r.Get("test-svc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn == nil {
		t.Fatal("expected non-nil connector")
	}

	mc := conn.(*mockConnector)
	if !mc.connected {
		t.Error("connector should be connected")
	}
	if mc.cfg.DSN != "test-dsn" {
		t.Errorf("expected DSN test-dsn, got %s", mc.cfg.DSN)
	}
}

func TestConnectUnsupportedDriver(t *testing.T) {
	r := NewRegistry()

	err := r.Connect("test-svc", ConnectionConfig{Driver: "unknown"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestConnectFailure(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	err := r.Connect("test-svc", ConnectionConfig{Driver: "mock", DSN: "fail"})
	if err == nil {
		t.Fatal("expected error for connection failure")
	}
}

func TestConnectReplacesExisting(t *testing.T) {
	r := NewRegistry()
	var first *mockConnector
	r.RegisterDriver("mock", func() Connector {
		mc := &mockConnector{}
		if first == nil {
			first = mc
		}
		return mc
	})

	r.Connect("svc", ConnectionConfig{Driver: "mock", DSN: "dsn1"})
	r.Connect("svc", ConnectionConfig{Driver: "mock", DSN: "dsn2"})

	if !first.disconnected {
		t.Error("first connector should have been disconnected on replacement")
	}

	conn, _ := r.Get("svc")
	mc := conn.(*mockConnector)
	if mc.cfg.DSN != "dsn2" {
		t.Errorf("expected DSN dsn2 after replacement, got %s", mc.cfg.DSN)
	}
}

func TestGetNotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("nonexistent")
	if err == nil {
		t.Fatal("expected error for nonexistent service")
	}
}

func TestDisconnect(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	r.Connect("svc", ConnectionConfig{Driver: "mock", DSN: "dsn"})
	err := r.Disconnect("svc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = r.Get("svc")
	if err == nil {
		t.Error("expected error after disconnect")
	}
}

func TestDisconnectNotFound(t *testing.T) {
	r := NewRegistry()

	err := r.Disconnect("nonexistent")
	if err == nil {
		t.Fatal("expected error for disconnecting nonexistent service")
	}
}

func TestCloseAll(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	r.Connect("svc1", ConnectionConfig{Driver: "mock", DSN: "dsn1"})
	r.Connect("svc2", ConnectionConfig{Driver: "mock", DSN: "dsn2"})

	r.CloseAll()

	if len(r.ListServices()) != 0 {
		t.Error("expected no services after CloseAll")
	}
}

func TestListServices(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	r.Connect("alpha", ConnectionConfig{Driver: "mock", DSN: "dsn"})
	r.Connect("beta", ConnectionConfig{Driver: "mock", DSN: "dsn"})

	services := r.ListServices()
	sort.Strings(services)

	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}
	if services[0] != "alpha" || services[1] != "beta" {
		t.Errorf("expected [alpha beta], got %v", services)
	}
}

func TestHasDriverAndDrivers(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("zeta", func() Connector { return &mockConnector{} })
	r.RegisterDriver("alpha", func() Connector { return &mockConnector{} })

	if !r.HasDriver("alpha") || r.HasDriver("beta") {
		t.Error("HasDriver mismatch")
	}
	if got := r.Drivers(); len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Errorf("Drivers() = %v, want [alpha zeta]", got)
	}
}

func TestConnectAll(t *testing.T) {
	r := NewRegistry()
	var created atomic.Int32
	r.RegisterDriver("mock", func() Connector {
		created.Add(1)
		return &mockConnector{}
	})

	cfgs := map[string]ConnectionConfig{
		"a": {Driver: "mock", DSN: "dsn-a"},
		"b": {Driver: "mock", DSN: "dsn-b"},
		"c": {Driver: "mock", DSN: "dsn-c"},
	}
	if err := r.ConnectAll(context.Background(), cfgs, 2); err != nil {
		t.Fatalf("ConnectAll: %v", err)
	}
	if created.Load() != 3 {
		t.Errorf("created %d connectors, want 3", created.Load())
	}
	if got := r.ListServices(); len(got) != 3 {
		t.Errorf("ListServices() = %v", got)
	}
}

func TestConnectAllReportsFailure(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	err := r.ConnectAll(context.Background(), map[string]ConnectionConfig{
		"bad": {Driver: "mock", DSN: "fail"},
	}, 0)
	if err == nil {
		t.Fatal("expected error from failing service")
	}
}

func TestPingAll(t *testing.T) {
	r := NewRegistry()
	down := errors.New("connection refused")
	r.RegisterDriver("up", func() Connector { return &mockConnector{} })
	r.RegisterDriver("down", func() Connector { return &mockConnector{pingErr: down} })

	_ = r.Connect("ok", ConnectionConfig{Driver: "up", DSN: "x"})
	_ = r.Connect("broken", ConnectionConfig{Driver: "down", DSN: "x"})

	failed := r.PingAll(context.Background())
	if len(failed) != 1 || !errors.Is(failed["broken"], down) {
		t.Errorf("PingAll() = %v, want only broken", failed)
	}
}

func TestGetNotFoundIsTyped(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Get() error = %v, want ErrServiceNotFound", err)
	}
	if err := r.Disconnect("missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Disconnect() error = %v, want ErrServiceNotFound", err)
	}
}

func TestConnectAllKeepsGoingAfterFailure(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	err := r.ConnectAll(context.Background(), map[string]ConnectionConfig{
		"bad":  {Driver: "mock", DSN: "fail"},
		"good": {Driver: "mock", DSN: "ok"},
	}, 1)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if _, err := r.Get("good"); err != nil {
		t.Errorf("good service should be connected: %v", err)
	}
}
