package recorder

import (
	"errors"
	"sync"
)

// State models the capture lifecycle of one recording.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrArtifactNotReady is returned when the artifact is requested before
	// the recording has stopped.
	ErrArtifactNotReady = errors.New("recorder: artifact not ready")
	// ErrInvalidTransition is returned for out-of-order lifecycle calls.
	ErrInvalidTransition = errors.New("recorder: invalid transition")
)

// Recorder accumulates raw container chunks while recording. Chunks arriving
// outside the recording state are discarded without corrupting state.
type Recorder struct {
	mu     sync.Mutex
	state  State
	chunks [][]byte
}

func New() *Recorder {
	return &Recorder{state: StateIdle}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Arm marks the media stream as acquired and ready to record.
func (r *Recorder) Arm() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return ErrInvalidTransition
	}
	r.state = StateArmed
	return nil
}

// Start begins accepting chunks.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateArmed {
		return ErrInvalidTransition
	}
	r.state = StateRecording
	return nil
}

// OnChunk appends data in arrival order while recording. Empty chunks and
// chunks delivered in any other state are dropped silently.
func (r *Recorder) OnChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	r.chunks = append(r.chunks, buf)
}

// Stop transitions to stopped. Explicit stop and timer expiry both land
// here; only the first call performs the transition and returns true.
func (r *Recorder) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return false
	}
	r.state = StateStopped
	return true
}

// Artifact returns the concatenated chunk sequence. Valid only once the
// recording has stopped.
func (r *Recorder) Artifact() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStopped {
		return nil, ErrArtifactNotReady
	}
	var size int
	for _, c := range r.chunks {
		size += len(c)
	}
	artifact := make([]byte, 0, size)
	for _, c := range r.chunks {
		artifact = append(artifact, c...)
	}
	return artifact, nil
}

// ChunkCount reports how many chunks have been accepted so far.
func (r *Recorder) ChunkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

// Reset discards all chunk data and returns to the idle state.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateIdle
	r.chunks = nil
}
