package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/karshdev/lift-core/internal/config"
)

func generatorFor(t *testing.T, handler http.HandlerFunc) Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPGenerator(config.FeedbackConfig{
		Mode:      "http",
		Endpoint:  srv.URL,
		TimeoutMS: 3000,
	})
}

func TestGenerateStreamsFragmentsInOrder(t *testing.T) {
	fragments := []string{"Good ", "start.", " Consider depth."}
	g := generatorFor(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !strings.Contains(req.Prompt, "interview question") {
			t.Errorf("unexpected prompt: %q", req.Prompt)
		}
		flusher := w.(http.Flusher)
		for _, fragment := range fragments {
			w.Write([]byte(fragment))
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	})

	var accumulated string
	err := g.Generate(context.Background(), Request{Question: "q", Transcript: "t"}, func(fragment string) error {
		accumulated += fragment
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if accumulated != "Good start. Consider depth." {
		t.Fatalf("fragments out of order or lost: %q", accumulated)
	}
}

func TestGenerateNonSuccessStatus(t *testing.T) {
	g := generatorFor(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	err := g.Generate(context.Background(), Request{Question: "q", Transcript: "t"}, func(string) error { return nil })
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestGenerateMidStreamDropKeepsPartial(t *testing.T) {
	g := generatorFor(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Length", "1000") // promise more than is sent
		w.Write([]byte("partial feedback"))
		flusher.Flush()
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
		}
	})

	var accumulated string
	err := g.Generate(context.Background(), Request{Question: "q", Transcript: "t"}, func(fragment string) error {
		accumulated += fragment
		return nil
	})
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("expected ErrStreamInterrupted, got %v", err)
	}
	if accumulated != "partial feedback" {
		t.Fatalf("partial text lost: %q", accumulated)
	}
}

func TestGenerateConsumerErrorAborts(t *testing.T) {
	g := generatorFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fragment"))
	})

	wantErr := errors.New("stale generation")
	err := g.Generate(context.Background(), Request{Question: "q", Transcript: "t"}, func(string) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected consumer error propagated, got %v", err)
	}
}

func TestPromptFormat(t *testing.T) {
	p := Prompt("Why us?", "Because I like the team.")
	want := "Please give feedback on the following interview question: Why us? - given the following transcript: Because I like the team."
	if p != want {
		t.Fatalf("unexpected prompt: %q", p)
	}
}
