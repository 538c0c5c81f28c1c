package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/karshdev/lift-core/internal/bus"
	"github.com/karshdev/lift-core/internal/config"
)

// Profile is a capture mode a device advertises: resolution plus which way
// the camera faces.
type Profile struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Facing string `json:"facing_mode,omitempty"`
}

// DeviceInfo is the registry's view of one capture device on the bus.
type DeviceInfo struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Profiles []Profile `json:"profiles,omitempty"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
}

type announceMessage struct {
	DeviceID  string    `json:"device_id"`
	Kind      string    `json:"kind"`
	Profiles  []Profile `json:"profiles,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type heartbeatMessage struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Registry tracks capture devices that announce themselves and heartbeat
// over the bus, and marks them unhealthy when heartbeats stop arriving. The
// runtime registers itself as a device of kind "runtime" so peers can see
// it the same way.
type Registry struct {
	cfg       config.NodeConfig
	log       *slog.Logger
	bus       *bus.Client
	mu        sync.RWMutex
	devices   map[string]*DeviceInfo
	heartbeat *time.Ticker
	cancel    context.CancelFunc
	subs      []*nats.Subscription
	meter     metric.Meter
}

func NewRegistry(ctx context.Context, cfg config.NodeConfig, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		cfg:     cfg,
		log:     log.With(slog.String("component", "device-registry")),
		bus:     busClient,
		devices: make(map[string]*DeviceInfo),
		meter:   otel.Meter("github.com/karshdev/lift-core/runtime"),
		cancel:  cancel,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.cancel()
		return nil, err
	}

	r.heartbeat = time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Millisecond)
	go r.runHeartbeat(ctx)
	go r.monitorHealth(ctx)

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce runtime", slog.String("error", err.Error()))
	}

	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.heartbeat != nil {
		r.heartbeat.Stop()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe("ctrl.device.announce", r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe("ctrl.device.heartbeat.*", r.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)

	return nil
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.heartbeat.C:
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) announce() error {
	msg := announceMessage{
		DeviceID:  r.cfg.ID,
		Kind:      r.cfg.Role,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.bus.Conn().Publish("ctrl.device.announce", payload); err != nil {
		return err
	}
	r.updateDevice(msg.DeviceID, msg.Kind, msg.Profiles, msg.Timestamp)
	return nil
}

func (r *Registry) publishHeartbeat() error {
	msg := heartbeatMessage{
		DeviceID:  r.cfg.ID,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("ctrl.device.heartbeat.%s", r.cfg.ID)
	return r.bus.Conn().Publish(subject, payload)
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement announceMessage
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		r.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = time.Now().UTC()
	}
	r.updateDevice(announcement.DeviceID, announcement.Kind, announcement.Profiles, announcement.Timestamp)
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb heartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	r.updateDevice(hb.DeviceID, "", nil, hb.Timestamp)
}

func (r *Registry) updateDevice(deviceID, kind string, profiles []Profile, timestamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		device = &DeviceInfo{ID: deviceID}
		r.devices[deviceID] = device
	}
	if kind != "" {
		device.Kind = kind
	}
	if len(profiles) > 0 {
		device.Profiles = profiles
	}
	device.LastSeen = timestamp
	device.Healthy = true
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := time.Now()
	for _, device := range r.devices {
		if now.Sub(device.LastSeen) > timeout {
			device.Healthy = false
		}
	}
}

// Healthy reports whether the runtime's own registry entry is fresh.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[r.cfg.ID]
	if !ok {
		return false
	}
	return device.Healthy
}

// Query returns a copy of every device matching the filter; a nil filter
// matches all.
func (r *Registry) Query(filter func(DeviceInfo) bool) []DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []DeviceInfo
	for _, device := range r.devices {
		copy := *device
		if filter == nil || filter(copy) {
			results = append(results, copy)
		}
	}
	return results
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	known, err := r.meter.Int64ObservableGauge("lift.devices.known",
		metric.WithDescription("Number of known capture devices"))
	if err != nil {
		return err
	}
	healthy, err := r.meter.Int64ObservableGauge("lift.devices.healthy",
		metric.WithDescription("Capture devices with a fresh heartbeat"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		total, alive := r.snapshotCounts()
		obs.ObserveInt64(known, total)
		obs.ObserveInt64(healthy, alive)
		return nil
	}, known, healthy)
	return err
}

func (r *Registry) snapshotCounts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total, healthy int64
	for _, device := range r.devices {
		total++
		if device.Healthy {
			healthy++
		}
	}
	return total, healthy
}

// WithKindFilter matches devices of one kind, such as "camera".
func WithKindFilter(kind string) func(DeviceInfo) bool {
	return func(device DeviceInfo) bool {
		return device.Kind == kind
	}
}

// HealthyOnly matches devices with a fresh heartbeat.
func HealthyOnly() func(DeviceInfo) bool {
	return func(device DeviceInfo) bool {
		return device.Healthy
	}
}

// SupportsProfile matches devices advertising at least the given resolution.
func SupportsProfile(width, height int) func(DeviceInfo) bool {
	return func(device DeviceInfo) bool {
		for _, p := range device.Profiles {
			if p.Width >= width && p.Height >= height {
				return true
			}
		}
		return false
	}
}
