package runtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/karshdev/lift-core/internal/config"
	"github.com/karshdev/lift-core/internal/encoder"
	"github.com/karshdev/lift-core/internal/feedback"
	"github.com/karshdev/lift-core/internal/media"
	"github.com/karshdev/lift-core/internal/session"
	"github.com/karshdev/lift-core/internal/transcribe"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	manager, err := session.NewManager(config.Default(), session.Deps{
		Source:      media.NewMockSource(),
		Encoder:     encoder.NewWAVEncoder(config.EncoderConfig{Mode: "wav", SampleRate: 16000, Channels: 1, Format: "wav"}),
		Transcriber: transcribe.NewMockClient(),
		Generator:   feedback.NewMockGenerator(),
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	mux := http.NewServeMux()
	newAPI(manager, nil, logger).register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestSessionAPIFullFlow(t *testing.T) {
	srv := newTestServer(t)

	status, created := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions",
		`{"question":{"text":"Tell me about a conflict you resolved"},"profile":"compact"}`)
	if status != http.StatusCreated {
		t.Fatalf("create returned %d: %v", status, created)
	}
	if created["phase"] != "ready" {
		t.Fatalf("expected ready session, got %v", created["phase"])
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("missing session id in %v", created)
	}
	base := srv.URL + "/v1/sessions/" + id

	if status, body := doJSON(t, http.MethodPost, base+"/start", ""); status != http.StatusOK {
		t.Fatalf("start returned %d: %v", status, body)
	}

	// Let some frames arrive before stopping.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, snap := doJSON(t, http.MethodGet, base, "")
		if count, _ := snap["chunk_count"].(float64); count >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if status, body := doJSON(t, http.MethodPost, base+"/stop", ""); status != http.StatusOK {
		t.Fatalf("stop returned %d: %v", status, body)
	}
	if status, body := doJSON(t, http.MethodPost, base+"/process", ""); status != http.StatusOK {
		t.Fatalf("process returned %d: %v", status, body)
	}

	deadline = time.Now().Add(2 * time.Second)
	var snap map[string]any
	for time.Now().Before(deadline) {
		_, snap = doJSON(t, http.MethodGet, base, "")
		if snap["phase"] == "completed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap["phase"] != "completed" {
		t.Fatalf("session never completed: %v", snap)
	}
	if transcript, _ := snap["transcript"].(string); !strings.Contains(transcript, "mock transcript") {
		t.Fatalf("unexpected transcript: %v", snap["transcript"])
	}
	if fb, _ := snap["feedback"].(string); fb == "" {
		t.Fatalf("expected feedback text, got %v", snap)
	}
}

func TestSessionAPIValidation(t *testing.T) {
	srv := newTestServer(t)

	if status, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", `{"question":{"text":"  "}}`); status != http.StatusBadRequest {
		t.Fatalf("blank question returned %d", status)
	}
	if status, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/nope", ""); status != http.StatusNotFound {
		t.Fatalf("unknown session returned %d", status)
	}

	_, created := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", `{"question":{"text":"q"}}`)
	id, _ := created["id"].(string)
	if status, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+id+"/stop", ""); status != http.StatusConflict {
		t.Fatalf("stop before recording returned %d", status)
	}
}
