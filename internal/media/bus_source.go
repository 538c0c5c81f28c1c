package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karshdev/lift-core/internal/bus"
	"github.com/karshdev/lift-core/internal/config"
	"github.com/karshdev/lift-core/internal/protocol"
	"github.com/nats-io/nats.go"
)

type busSource struct {
	cfg    config.MediaConfig
	bus    *bus.Client
	logger *slog.Logger
}

// NewBusSource acquires streams from capture devices connected over the bus.
func NewBusSource(cfg config.MediaConfig, busClient *bus.Client, logger *slog.Logger) Source {
	return &busSource{
		cfg:    cfg,
		bus:    busClient,
		logger: logger.With(slog.String("component", "media-source")),
	}
}

func (s *busSource) Acquire(ctx context.Context, sessionID string, profile config.CaptureProfile) (Stream, error) {
	req := protocol.AcquireRequest{
		SessionID: sessionID,
		Width:     profile.Width,
		Height:    profile.Height,
		Facing:    profile.Facing,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(s.cfg.AcquireTimeout) * time.Millisecond
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := s.bus.Conn().RequestWithContext(reqCtx, protocol.SubjectMediaAcquire, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	var reply protocol.AcquireReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode acquire reply: %w", err)
	}
	if !reply.Granted {
		switch reply.Reason {
		case protocol.ReasonPermissionDenied:
			return nil, ErrPermissionDenied
		default:
			return nil, ErrDeviceUnavailable
		}
	}

	stream := &busStream{
		id:     reply.StreamID,
		codec:  reply.Codec,
		source: s,
		chunks: make(chan Chunk, 64),
	}
	subject := fmt.Sprintf("%s.%s", protocol.SubjectMediaFramePrefix, reply.StreamID)
	sub, err := s.bus.Conn().Subscribe(subject, stream.handleFrame)
	if err != nil {
		return nil, fmt.Errorf("subscribe media frames: %w", err)
	}
	stream.sub = sub
	s.logger.Info("media stream acquired",
		slog.String("session_id", sessionID),
		slog.String("stream_id", reply.StreamID),
		slog.String("codec", reply.Codec))
	return stream, nil
}

type busStream struct {
	id       string
	codec    string
	source   *busSource
	sub      *nats.Subscription
	mu       sync.Mutex
	chunks   chan Chunk
	closed   bool
	released sync.Once
}

func (st *busStream) ID() string           { return st.id }
func (st *busStream) Codec() string        { return st.codec }
func (st *busStream) Chunks() <-chan Chunk { return st.chunks }

func (st *busStream) handleFrame(msg *nats.Msg) {
	var frame protocol.MediaFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		st.source.logger.Warn("failed to decode media frame", slog.String("error", err.Error()))
		return
	}
	chunk := Chunk{Sequence: frame.Sequence, Data: frame.Data, Final: frame.Final}

	// Subscription drain is asynchronous, so frames can still be dispatched
	// after Release; the closed flag and the send share one lock so a frame
	// can never land on a closed channel.
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	select {
	case st.chunks <- chunk:
	default:
		st.source.logger.Warn("media chunk dropped, consumer too slow",
			slog.String("stream_id", st.id),
			slog.Int("sequence", frame.Sequence))
	}
	if frame.Final {
		st.closed = true
		close(st.chunks)
	}
}

func (st *busStream) closeChunks() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.closed {
		st.closed = true
		close(st.chunks)
	}
}

func (st *busStream) Record(ctx context.Context) error {
	return st.publishControl(protocol.SubjectMediaRecord, "start")
}

func (st *busStream) Stop(ctx context.Context) error {
	return st.publishControl(protocol.SubjectMediaRecord, "stop")
}

func (st *busStream) publishControl(subject, action string) error {
	ctl := protocol.RecordControl{StreamID: st.id, Action: action, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(ctl)
	if err != nil {
		return err
	}
	return st.source.bus.Conn().Publish(subject, data)
}

func (st *busStream) Release() {
	st.released.Do(func() {
		rel := protocol.ReleaseRequest{StreamID: st.id, Timestamp: time.Now().UTC()}
		if data, err := json.Marshal(rel); err == nil {
			if err := st.source.bus.Conn().Publish(protocol.SubjectMediaRelease, data); err != nil {
				st.source.logger.Warn("failed to publish media release", slog.String("error", err.Error()))
			}
		}
		if st.sub != nil {
			_ = st.sub.Drain()
		}
		st.closeChunks()
	})
}
