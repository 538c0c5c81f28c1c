package encoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/karshdev/lift-core/internal/config"
)

// ErrEncodingFailed means the transcoder could not parse the recorded
// container or aborted mid-encode. Recoverable; the session may restart.
var ErrEncodingFailed = errors.New("encoder: encoding failed")

// Asset is the normalized, upload-ready audio object derived from a
// recording artifact. Exactly one asset exists per completed recording.
type Asset struct {
	Bytes     []byte
	MIMEType  string
	SessionID string
}

// Encoder normalizes a raw recorded container into a mono, fixed-sample-rate
// audio asset. Implementations must be safe to invoke repeatedly on the same
// artifact.
type Encoder interface {
	Encode(ctx context.Context, sessionID string, raw []byte) (Asset, error)
}

// FromConfig selects the encoder backend.
func FromConfig(cfg config.EncoderConfig) (Encoder, error) {
	switch cfg.Mode {
	case "ffmpeg":
		return NewFFmpegEncoder(cfg)
	case "wav":
		return NewWAVEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown encoder mode %q", cfg.Mode)
	}
}
