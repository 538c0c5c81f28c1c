package media

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/karshdev/lift-core/internal/config"
)

type mockSource struct {
	frameBytes    int
	frameInterval time.Duration
	deny          error
}

// NewMockSource emits synthetic PCM frames, for development and tests
// without a capture device on the bus.
func NewMockSource() Source {
	return &mockSource{frameBytes: 640, frameInterval: 10 * time.Millisecond}
}

// NewFailingSource always fails acquisition with the given error.
func NewFailingSource(err error) Source {
	return &mockSource{deny: err}
}

func (s *mockSource) Acquire(_ context.Context, _ string, _ config.CaptureProfile) (Stream, error) {
	if s.deny != nil {
		return nil, s.deny
	}
	return &mockStream{
		id:            uuid.NewString(),
		frameBytes:    s.frameBytes,
		frameInterval: s.frameInterval,
		chunks:        make(chan Chunk, 64),
		done:          make(chan struct{}),
	}, nil
}

type mockStream struct {
	id            string
	frameBytes    int
	frameInterval time.Duration
	chunks        chan Chunk
	done          chan struct{}
	stopOnce      sync.Once
	releaseOnce   sync.Once
	recording     sync.Once
}

func (st *mockStream) ID() string           { return st.id }
func (st *mockStream) Codec() string        { return "pcm_s16le" }
func (st *mockStream) Chunks() <-chan Chunk { return st.chunks }

func (st *mockStream) Record(ctx context.Context) error {
	st.recording.Do(func() {
		go st.run()
	})
	return nil
}

func (st *mockStream) run() {
	ticker := time.NewTicker(st.frameInterval)
	defer ticker.Stop()
	sequence := 0
	for {
		select {
		case <-st.done:
			st.chunks <- Chunk{Sequence: sequence, Final: true}
			close(st.chunks)
			return
		case <-ticker.C:
			st.chunks <- Chunk{Sequence: sequence, Data: st.frame(sequence)}
			sequence++
		}
	}
}

// frame produces a deterministic little-endian 16-bit sample ramp.
func (st *mockStream) frame(sequence int) []byte {
	data := make([]byte, st.frameBytes)
	for i := 0; i+1 < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], uint16(sequence*31+i))
	}
	return data
}

func (st *mockStream) Stop(ctx context.Context) error {
	st.stopOnce.Do(func() { close(st.done) })
	return nil
}

func (st *mockStream) Release() {
	st.releaseOnce.Do(func() {
		st.stopOnce.Do(func() { close(st.done) })
	})
}
