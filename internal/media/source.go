package media

import (
	"context"
	"errors"

	"github.com/karshdev/lift-core/internal/config"
)

var (
	// ErrPermissionDenied means the capture device refused camera/microphone access.
	ErrPermissionDenied = errors.New("media: permission denied")
	// ErrDeviceUnavailable means no capture device could satisfy the constraints.
	ErrDeviceUnavailable = errors.New("media: device unavailable")
)

// Chunk is one piece of recorded container data delivered by a live stream.
type Chunk struct {
	Sequence int
	Data     []byte
	Final    bool
}

// Stream is a live camera+microphone stream handle. It is owned by the
// session that acquired it; Release stops all tracks and is safe to call
// more than once.
type Stream interface {
	ID() string
	Codec() string
	Chunks() <-chan Chunk
	Record(ctx context.Context) error
	Stop(ctx context.Context) error
	Release()
}

// Source acquires live streams from a capture device.
type Source interface {
	Acquire(ctx context.Context, sessionID string, profile config.CaptureProfile) (Stream, error)
}
