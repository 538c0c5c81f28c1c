package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karshdev/lift-core/internal/config"
	"github.com/karshdev/lift-core/internal/encoder"
)

type httpClient struct {
	cfg    config.TranscribeConfig
	client *http.Client
}

// NewHTTPClient uploads assets as multipart payloads to the remote
// speech-to-text endpoint.
func NewHTTPClient(cfg config.TranscribeConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
	}
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
	Error      string `json:"error"`
}

func (c *httpClient) Transcribe(ctx context.Context, asset encoder.Asset, question string) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", c.cfg.Model); err != nil {
		return Result{}, err
	}
	fw, err := mw.CreateFormFile("file", uuid.NewString()+assetExtension(asset.MIMEType))
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(fw, bytes.NewReader(asset.Bytes)); err != nil {
		return Result{}, err
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	endpoint := fmt.Sprintf("%s/transcribe?question=%s",
		strings.TrimRight(c.cfg.Endpoint, "/"), url.QueryEscape(question))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("%w: status %s", ErrUploadFailed, resp.Status)
	}

	var parsed transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode transcribe response: %w", err)
	}
	if parsed.Error != "" {
		return Result{Text: parsed.Error, SoftError: true}, nil
	}
	return Result{Text: parsed.Transcript}, nil
}

func assetExtension(mimeType string) string {
	switch mimeType {
	case "audio/wav":
		return ".wav"
	case "audio/mp3", "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}
