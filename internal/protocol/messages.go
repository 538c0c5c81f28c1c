package protocol

import "time"

// MediaFrame carries a chunk of recorded container data streamed from a
// capture device while a session is recording.
type MediaFrame struct {
	StreamID string `json:"stream_id"`
	Sequence int    `json:"sequence"`
	Codec    string `json:"codec"` // webm, pcm_s16le
	Data     []byte `json:"data"`
	Final    bool   `json:"final"`
}

// AcquireRequest asks a capture device to open its camera and microphone.
type AcquireRequest struct {
	SessionID string    `json:"session_id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Facing    string    `json:"facing_mode"`
	Timestamp time.Time `json:"timestamp"`
}

// AcquireReply reports whether the device granted the stream.
type AcquireReply struct {
	Granted  bool   `json:"granted"`
	StreamID string `json:"stream_id,omitempty"`
	Codec    string `json:"codec,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ReleaseRequest tells a capture device to stop all tracks for a stream.
type ReleaseRequest struct {
	StreamID  string    `json:"stream_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordControl starts or stops frame delivery for an acquired stream.
type RecordControl struct {
	StreamID  string    `json:"stream_id"`
	Action    string    `json:"action"` // start, stop
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectMediaAcquire     = "media.acquire"
	SubjectMediaRelease     = "media.release"
	SubjectMediaRecord      = "media.record"
	SubjectMediaFramePrefix = "media.frame"

	ReasonPermissionDenied  = "permission_denied"
	ReasonDeviceUnavailable = "device_unavailable"
)
