package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/karshdev/lift-core/internal/config"
)

type httpGenerator struct {
	cfg    config.FeedbackConfig
	client *http.Client
}

// NewHTTPGenerator submits the prompt to the remote generation endpoint and
// consumes the chunked response body incrementally.
func NewHTTPGenerator(cfg config.FeedbackConfig) Generator {
	return &httpGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

func (g *httpGenerator) Generate(ctx context.Context, req Request, consumer func(string) error) error {
	payload, err := json.Marshal(generateRequest{Prompt: Prompt(req.Question, req.Transcript)})
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(g.cfg.Endpoint, "/") + "/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %s", ErrGenerationFailed, resp.Status)
	}

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if cerr := consumer(string(buf[:n])); cerr != nil {
				return cerr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
		}
	}
}
