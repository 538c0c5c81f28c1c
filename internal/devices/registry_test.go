package devices

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/karshdev/lift-core/internal/bus"
	"github.com/karshdev/lift-core/internal/config"
	"github.com/karshdev/lift-core/internal/natsserver"
)

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, log)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func waitUntil(t *testing.T, timeout time.Duration, check func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestRegistryTracksAnnouncedDevices(t *testing.T) {
	client := startBus(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := NewRegistry(context.Background(), config.NodeConfig{
		ID:                "runtime-1",
		Role:              "runtime",
		HeartbeatInterval: 50,
		HeartbeatTimeout:  200,
	}, client, log)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer r.Close()

	announce := map[string]any{
		"device_id": "cam-1",
		"kind":      "camera",
		"profiles":  []Profile{{Width: 1280, Height: 720, Facing: "user"}},
		"timestamp": time.Now().UTC(),
	}
	payload, _ := json.Marshal(announce)
	if err := client.Conn().Publish("ctrl.device.announce", payload); err != nil {
		t.Fatalf("publish announce: %v", err)
	}

	if !waitUntil(t, 2*time.Second, func() bool {
		return len(r.Query(WithKindFilter("camera"))) == 1
	}) {
		t.Fatal("announced camera never appeared in the registry")
	}

	cams := r.Query(SupportsProfile(1280, 720))
	if len(cams) != 1 || cams[0].ID != "cam-1" {
		t.Fatalf("profile filter missed the camera: %+v", cams)
	}
	if got := r.Query(SupportsProfile(3840, 2160)); len(got) != 0 {
		t.Fatalf("profile filter matched beyond advertised resolution: %+v", got)
	}
}

func TestRegistryMarksSilentDevicesUnhealthy(t *testing.T) {
	client := startBus(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := NewRegistry(context.Background(), config.NodeConfig{
		ID:                "runtime-1",
		Role:              "runtime",
		HeartbeatInterval: 50,
		HeartbeatTimeout:  150,
	}, client, log)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer r.Close()

	hb, _ := json.Marshal(map[string]any{"device_id": "cam-2", "timestamp": time.Now().UTC()})
	if err := client.Conn().Publish("ctrl.device.heartbeat.cam-2", hb); err != nil {
		t.Fatalf("publish heartbeat: %v", err)
	}

	if !waitUntil(t, 2*time.Second, func() bool {
		for _, d := range r.Query(HealthyOnly()) {
			if d.ID == "cam-2" {
				return true
			}
		}
		return false
	}) {
		t.Fatal("heartbeating device never became healthy")
	}

	// The device stays silent while the runtime keeps heartbeating itself.
	if !waitUntil(t, 3*time.Second, func() bool {
		for _, d := range r.Query(nil) {
			if d.ID == "cam-2" {
				return !d.Healthy
			}
		}
		return false
	}) {
		t.Fatal("silent device never marked unhealthy")
	}
	if !r.Healthy() {
		t.Fatal("runtime's own entry should stay healthy via heartbeats")
	}
}
