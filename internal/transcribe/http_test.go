package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/karshdev/lift-core/internal/config"
	"github.com/karshdev/lift-core/internal/encoder"
)

func testAsset() encoder.Asset {
	return encoder.Asset{Bytes: []byte("fake-audio"), MIMEType: "audio/mp3", SessionID: "s1"}
}

func clientFor(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(config.TranscribeConfig{
		Mode:      "http",
		Endpoint:  srv.URL,
		Model:     "whisper-1",
		TimeoutMS: 2000,
	})
}

func TestTranscribeSuccess(t *testing.T) {
	var gotQuestion, gotModel, gotFilename string
	c := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuestion = r.URL.Query().Get("question")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		if _, header, err := r.FormFile("file"); err == nil {
			gotFilename = header.Filename
		}
		w.Write([]byte(`{"transcript":"I enjoy solving hard problems."}`))
	})

	result, err := c.Transcribe(context.Background(), testAsset(), "Why this role?")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text != "I enjoy solving hard problems." || result.SoftError {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gotQuestion != "Why this role?" {
		t.Fatalf("question not forwarded, got %q", gotQuestion)
	}
	if gotModel != "whisper-1" {
		t.Fatalf("model field missing, got %q", gotModel)
	}
	if !strings.HasSuffix(gotFilename, ".mp3") {
		t.Fatalf("expected mp3 filename, got %q", gotFilename)
	}
}

func TestTranscribeSoftError(t *testing.T) {
	c := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"too short"}`))
	})

	result, err := c.Transcribe(context.Background(), testAsset(), "q")
	if err != nil {
		t.Fatalf("soft errors must not fail the request: %v", err)
	}
	if !result.SoftError || result.Text != "too short" {
		t.Fatalf("expected soft error surfaced as text, got %+v", result)
	}
}

func TestTranscribeUploadFailed(t *testing.T) {
	c := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.Transcribe(context.Background(), testAsset(), "q")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
}

func TestTranscribeMalformedBody(t *testing.T) {
	c := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	if _, err := c.Transcribe(context.Background(), testAsset(), "q"); err == nil {
		t.Fatal("expected decode error")
	}
}
