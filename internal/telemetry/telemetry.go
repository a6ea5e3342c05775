package telemetry

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHeartbeatInterval = 1 * time.Hour

// SettingsStore is the interface the heartbeat needs from the config store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Properties is the state snapshot logged with each heartbeat.
type Properties struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
	DBTypes   []string
	Services  int
	APIKeys   int
	Features  []string
	UptimeHrs float64
}

// PropertiesFunc is called each beat to gather current state.
type PropertiesFunc func() Properties

// Heartbeat periodically logs a one-line summary of the running server.
// Nothing leaves the process; the line is for operators grepping logs.
type Heartbeat struct {
	instanceID string
	propsFn    PropertiesFunc
	logger     *slog.Logger
	interval   time.Duration
	startedAt  time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeat creates a Heartbeat. It resolves (or generates) the instance
// ID from the settings store. Returns nil when disabled by the
// ASKDB_HEARTBEAT environment variable or the heartbeat.enabled setting.
func NewHeartbeat(ctx context.Context, store SettingsStore, propsFn PropertiesFunc, logger *slog.Logger) *Heartbeat {
	switch strings.ToLower(os.Getenv("ASKDB_HEARTBEAT")) {
	case "0", "false", "off", "no":
		return nil
	}
	if store != nil {
		val, err := store.GetSetting(ctx, "heartbeat.enabled")
		if err == nil && (val == "false" || val == "0") {
			return nil
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Heartbeat{
		instanceID: resolveInstanceID(ctx, store),
		propsFn:    propsFn,
		logger:     logger,
		interval:   defaultHeartbeatInterval,
		startedAt:  time.Now(),
	}
}

// InstanceID returns the persistent identifier of this installation.
func (h *Heartbeat) InstanceID() string {
	if h == nil {
		return ""
	}
	return h.instanceID
}

// Start logs an initial beat and then one per interval. Non-blocking.
func (h *Heartbeat) Start() {
	if h == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		h.beat("startup")

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.beat("heartbeat")
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the loop and logs a final beat.
func (h *Heartbeat) Shutdown() {
	if h == nil {
		return
	}
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	h.beat("shutdown")
}

func (h *Heartbeat) beat(event string) {
	props := h.propsFn()
	props.UptimeHrs = time.Since(h.startedAt).Hours()
	h.logger.Info(event,
		"instance_id", h.instanceID,
		"version", props.Version,
		"go_version", props.GoVersion,
		"os", props.OS,
		"arch", props.Arch,
		"db_types", props.DBTypes,
		"services", props.Services,
		"api_keys", props.APIKeys,
		"features", props.Features,
		"uptime_hours", props.UptimeHrs,
	)
}

// resolveInstanceID loads or generates a persistent instance ID.
func resolveInstanceID(ctx context.Context, store SettingsStore) string {
	if store != nil {
		id, err := store.GetSetting(ctx, "instance_id")
		if err == nil && id != "" {
			return id
		}
	}

	id := uuid.New().String()

	if store != nil {
		_ = store.SetSetting(ctx, "instance_id", id)
	}
	return id
}
