package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/karshdev/lift-core/internal/config"
	"github.com/karshdev/lift-core/internal/encoder"
)

// ErrUploadFailed means the transcription endpoint rejected the upload at
// the transport level (non-2xx status). Recoverable via restart.
var ErrUploadFailed = errors.New("transcribe: upload failed")

// Result is the outcome of one transcription request. When the service
// reports a failure inside a success-shaped response, the error string is
// surfaced as Text and SoftError is set; such transcripts are shown to the
// user but do not feed generation.
type Result struct {
	Text      string
	SoftError bool
}

// Client uploads an encoded asset and returns its transcript.
type Client interface {
	Transcribe(ctx context.Context, asset encoder.Asset, question string) (Result, error)
}

// FromConfig selects the transcription backend.
func FromConfig(cfg config.TranscribeConfig) (Client, error) {
	switch cfg.Mode {
	case "http":
		return NewHTTPClient(cfg), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown transcribe mode %q", cfg.Mode)
	}
}
