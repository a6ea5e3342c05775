package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockStore implements SettingsStore for testing.
type mockStore struct {
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("not found")
	}
	return v, nil
}

func (m *mockStore) SetSetting(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

// syncBuffer is a bytes.Buffer safe for the heartbeat goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func noProps() Properties { return Properties{} }

func TestResolveInstanceID_GeneratesAndPersists(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()

	id := resolveInstanceID(ctx, store)
	if id == "" {
		t.Fatal("expected non-empty instance ID")
	}

	stored, err := store.GetSetting(ctx, "instance_id")
	if err != nil {
		t.Fatalf("expected instance_id in store: %v", err)
	}
	if stored != id {
		t.Errorf("stored ID %q != returned ID %q", stored, id)
	}

	if id2 := resolveInstanceID(ctx, store); id2 != id {
		t.Errorf("expected same ID on second call, got %q vs %q", id2, id)
	}
}

func TestResolveInstanceID_NilStore(t *testing.T) {
	if id := resolveInstanceID(context.Background(), nil); id == "" {
		t.Fatal("expected non-empty instance ID even with nil store")
	}
}

func TestNewHeartbeat_DisabledViaSetting(t *testing.T) {
	store := newMockStore()
	store.data["heartbeat.enabled"] = "false"

	if hb := NewHeartbeat(context.Background(), store, noProps, nil); hb != nil {
		t.Fatal("expected nil heartbeat when disabled via setting")
	}
}

func TestNewHeartbeat_DisabledViaEnv(t *testing.T) {
	for _, val := range []string{"0", "false", "False", "OFF", "no"} {
		t.Run(val, func(t *testing.T) {
			t.Setenv("ASKDB_HEARTBEAT", val)
			if hb := NewHeartbeat(context.Background(), newMockStore(), noProps, nil); hb != nil {
				t.Fatalf("expected nil heartbeat when ASKDB_HEARTBEAT=%s", val)
			}
		})
	}
}

func TestNewHeartbeat_EnabledByDefault(t *testing.T) {
	store := newMockStore()
	hb := NewHeartbeat(context.Background(), store, noProps, nil)
	if hb == nil {
		t.Fatal("expected heartbeat to be enabled by default")
	}
	if id, _ := store.GetSetting(context.Background(), "instance_id"); id != hb.InstanceID() {
		t.Errorf("persisted ID %q != heartbeat ID %q", id, hb.InstanceID())
	}
}

func TestHeartbeat_StartShutdownLogs(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	hb := NewHeartbeat(context.Background(), newMockStore(), func() Properties {
		return Properties{
			Version:  "test",
			DBTypes:  []string{"postgres", "duckdb"},
			Services: 2,
		}
	}, logger)

	hb.Start()
	time.Sleep(50 * time.Millisecond)
	hb.Shutdown()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected startup and shutdown lines, got %q", buf.String())
	}

	var first, last map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatal(err)
	}
	if first["msg"] != "startup" || last["msg"] != "shutdown" {
		t.Errorf("messages = %v, %v", first["msg"], last["msg"])
	}
	if first["instance_id"] != hb.InstanceID() || first["services"] != float64(2) {
		t.Errorf("startup line = %v", first)
	}
}

func TestHeartbeat_NilSafe(t *testing.T) {
	var hb *Heartbeat
	hb.Start()
	hb.Shutdown()
	if hb.InstanceID() != "" {
		t.Error("nil heartbeat should have no instance ID")
	}
}
