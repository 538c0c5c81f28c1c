package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/karshdev/lift-core/internal/config"
	"github.com/karshdev/lift-core/internal/encoder"
	"github.com/karshdev/lift-core/internal/eventstore"
	"github.com/karshdev/lift-core/internal/feedback"
	"github.com/karshdev/lift-core/internal/media"
	"github.com/karshdev/lift-core/internal/recorder"
	"github.com/karshdev/lift-core/internal/transcribe"
)

// Phase is the externally visible lifecycle state of a practice session.
type Phase string

const (
	PhaseReady              Phase = "ready"
	PhaseRecording          Phase = "recording"
	PhaseStopped            Phase = "stopped"
	PhaseUploading          Phase = "uploading"
	PhaseTranscribing       Phase = "transcribing"
	PhaseGeneratingFeedback Phase = "generating_feedback"
	PhaseCompleted          Phase = "completed"
	PhaseCancelled          Phase = "cancelled"
	PhaseError              Phase = "error"
	PhasePermissionDenied   Phase = "permission_denied"
)

// ErrorCode classifies terminal pipeline failures.
type ErrorCode string

const (
	CodePermissionDenied  ErrorCode = "permission_denied"
	CodeDeviceUnavailable ErrorCode = "device_unavailable"
	CodeEncodingFailed    ErrorCode = "encoding_failed"
	CodeUploadFailed      ErrorCode = "upload_failed"
	CodeGenerationFailed  ErrorCode = "generation_failed"
)

var (
	// ErrInvalidPhase is returned when an operation is not legal in the
	// session's current phase.
	ErrInvalidPhase = errors.New("session: operation not valid in current phase")

	errStaleGeneration = errors.New("session: stale generation")
)

// Question is the interview prompt a session answers. VideoURL points at an
// optional pre-recorded interviewer clip shown to the candidate.
type Question struct {
	Text     string `json:"text"`
	VideoURL string `json:"video_url,omitempty"`
}

// Deps bundles the pipeline collaborators a session drives. Store may be nil
// when no timeline persistence is wanted.
type Deps struct {
	Source      media.Source
	Encoder     encoder.Encoder
	Transcriber transcribe.Client
	Generator   feedback.Generator
	Store       *eventstore.Store
	Logger      *slog.Logger
}

// Snapshot is a point-in-time view of a session, safe to serialize.
type Snapshot struct {
	ID               string    `json:"id"`
	Phase            Phase     `json:"phase"`
	Question         Question  `json:"question"`
	RemainingSeconds int       `json:"remaining_seconds"`
	ChunkCount       int       `json:"chunk_count"`
	Transcript       string    `json:"transcript,omitempty"`
	SoftError        bool      `json:"soft_error,omitempty"`
	Feedback         string    `json:"feedback,omitempty"`
	FeedbackComplete bool      `json:"feedback_complete"`
	ErrorCode        ErrorCode `json:"error_code,omitempty"`
}

// Session owns one record-and-review run: it acquires a media stream,
// accumulates the recording against a countdown, and on demand drives the
// encode, transcribe, and feedback stages. All mutation happens under one
// mutex; asynchronous stage results re-acquire it and are discarded when the
// session has been restarted or cancelled in the meantime, tracked by a
// generation counter.
type Session struct {
	id       string
	question Question
	profile  config.CaptureProfile
	cfg      config.SessionConfig
	deps     Deps
	log      *slog.Logger

	countdown *Countdown

	mu           sync.Mutex
	phase        Phase
	generation   uint64
	remaining    int
	stream       media.Stream
	rec          *recorder.Recorder
	transcript   string
	softError    bool
	feedback     string
	feedbackDone bool
	errCode      ErrorCode
}

// New builds a session and immediately acquires a media stream for it. The
// session is returned in the ready phase on success, or in permission_denied
// or error when acquisition fails; inspect Snapshot for the outcome.
func New(ctx context.Context, id string, question Question, profile config.CaptureProfile, cfg config.SessionConfig, deps Deps) *Session {
	s := &Session{
		id:        id,
		question:  question,
		profile:   profile,
		cfg:       cfg,
		deps:      deps,
		countdown: NewCountdown(),
		rec:       recorder.New(),
		remaining: cfg.DurationSeconds,
	}
	s.log = deps.Logger.With(
		slog.String("component", "session"),
		slog.String("session_id", id),
	)

	s.mu.Lock()
	s.acquireLocked(ctx)
	s.mu.Unlock()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) acquireLocked(ctx context.Context) {
	stream, err := s.deps.Source.Acquire(ctx, s.id, s.profile)
	switch {
	case errors.Is(err, media.ErrPermissionDenied):
		s.phase = PhasePermissionDenied
		s.errCode = CodePermissionDenied
		s.log.Warn("media permission denied")
	case err != nil:
		s.phase = PhaseError
		s.errCode = CodeDeviceUnavailable
		s.log.Warn("media acquisition failed", slog.String("error", err.Error()))
	default:
		s.stream = stream
		if err := s.rec.Arm(); err != nil {
			stream.Release()
			s.stream = nil
			s.phase = PhaseError
			s.errCode = CodeDeviceUnavailable
			return
		}
		s.phase = PhaseReady
	}
	s.appendEventLocked("phase", string(s.phase))
}

// Start begins recording: chunks flow from the stream into the recorder and
// the countdown starts ticking.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady {
		return fmt.Errorf("%w: start from %s", ErrInvalidPhase, s.phase)
	}
	if err := s.rec.Start(); err != nil {
		return err
	}
	if err := s.stream.Record(ctx); err != nil {
		return err
	}
	s.phase = PhaseRecording
	s.remaining = s.cfg.DurationSeconds

	gen := s.generation
	go s.pump(gen, s.stream.Chunks())
	s.countdown.Start(s.cfg.DurationSeconds,
		func(remaining int) { s.onTick(gen, remaining) },
		func() { s.onExpired(gen) })

	s.appendEventLocked("phase", string(PhaseRecording))
	s.log.Info("recording started", slog.Int("duration_seconds", s.cfg.DurationSeconds))
	return nil
}

// pump moves chunks from the stream into the recorder until the stream
// closes or the session moves on to a new generation.
func (s *Session) pump(gen uint64, chunks <-chan media.Chunk) {
	for chunk := range chunks {
		// The generation check and the append stay under one lock so a
		// restart cannot slip between them and receive a stale chunk.
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		s.rec.OnChunk(chunk.Data)
		s.mu.Unlock()
	}
}

func (s *Session) onTick(gen uint64, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.phase != PhaseRecording {
		return
	}
	s.remaining = remaining
}

func (s *Session) onExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.phase != PhaseRecording {
		return
	}
	s.remaining = 0
	s.finishRecordingLocked(context.Background(), "duration_elapsed")
}

// Stop ends the recording early. Explicit stop and countdown expiry converge
// on the same transition; whichever arrives first wins and the other becomes
// a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseRecording {
		return fmt.Errorf("%w: stop from %s", ErrInvalidPhase, s.phase)
	}
	s.finishRecordingLocked(ctx, "requested")
	return nil
}

func (s *Session) finishRecordingLocked(ctx context.Context, cause string) {
	s.countdown.Cancel()
	if !s.rec.Stop() {
		return
	}
	if s.stream != nil {
		if err := s.stream.Stop(ctx); err != nil {
			s.log.Warn("stream stop failed", slog.String("error", err.Error()))
		}
	}
	s.phase = PhaseStopped
	s.appendEventLocked("phase", string(PhaseStopped))
	s.log.Info("recording stopped",
		slog.String("cause", cause),
		slog.Int("chunks", s.rec.ChunkCount()))
}

// Process kicks off the asynchronous encode, transcribe, and feedback stages
// for the stopped recording. The session advances through uploading,
// transcribing, and generating_feedback, landing in completed or error.
func (s *Session) Process(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseStopped {
		s.mu.Unlock()
		return fmt.Errorf("%w: process from %s", ErrInvalidPhase, s.phase)
	}
	artifact, err := s.rec.Artifact()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.phase = PhaseUploading
	gen := s.generation
	s.appendEventLocked("phase", string(PhaseUploading))
	s.mu.Unlock()

	go s.runPipeline(context.WithoutCancel(ctx), gen, artifact)
	return nil
}

func (s *Session) runPipeline(ctx context.Context, gen uint64, artifact []byte) {
	asset, err := s.deps.Encoder.Encode(ctx, s.id, artifact)
	if err != nil {
		s.fail(gen, CodeEncodingFailed, err)
		return
	}
	if !s.advance(gen, PhaseTranscribing) {
		return
	}

	result, err := s.deps.Transcriber.Transcribe(ctx, asset, s.question.Text)
	if err != nil {
		s.fail(gen, CodeUploadFailed, err)
		return
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.transcript = result.Text
	s.softError = result.SoftError
	s.appendEventLocked("transcript", result.Text)
	if result.Text == "" || (result.SoftError && !s.cfg.FeedbackOnSoftError) {
		// Generation needs a non-empty transcript; soft failures surface
		// the service's message as the transcript and skip generation.
		s.phase = PhaseCompleted
		s.appendEventLocked("phase", string(PhaseCompleted))
		s.mu.Unlock()
		return
	}
	s.phase = PhaseGeneratingFeedback
	s.appendEventLocked("phase", string(PhaseGeneratingFeedback))
	s.mu.Unlock()

	err = s.deps.Generator.Generate(ctx, feedback.Request{
		SessionID:  s.id,
		Question:   s.question.Text,
		Transcript: result.Text,
	}, func(fragment string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen {
			return errStaleGeneration
		}
		s.feedback += fragment
		return nil
	})

	switch {
	case errors.Is(err, errStaleGeneration):
		return
	case errors.Is(err, feedback.ErrStreamInterrupted):
		// Fragments delivered before the drop stay visible and the stream
		// counts as complete with a partial result; it is never replayed.
		s.mu.Lock()
		if s.generation == gen {
			s.feedbackDone = true
			s.phase = PhaseCompleted
			s.appendEventLocked("feedback", s.feedback)
			s.appendEventLocked("phase", string(PhaseCompleted))
			s.log.Warn("feedback stream interrupted", slog.String("error", err.Error()))
		}
		s.mu.Unlock()
	case err != nil:
		s.fail(gen, CodeGenerationFailed, err)
	default:
		s.mu.Lock()
		if s.generation == gen {
			s.feedbackDone = true
			s.phase = PhaseCompleted
			s.appendEventLocked("feedback", s.feedback)
			s.appendEventLocked("phase", string(PhaseCompleted))
		}
		s.mu.Unlock()
	}
}

func (s *Session) advance(gen uint64, next Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.phase = next
	s.appendEventLocked("phase", string(next))
	return true
}

func (s *Session) fail(gen uint64, code ErrorCode, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.phase = PhaseError
	s.errCode = code
	s.appendEventLocked("error", string(code))
	s.log.Error("session pipeline failed",
		slog.String("code", string(code)),
		slog.String("error", err.Error()))
}

// Restart discards the recording and any downstream results, re-acquires a
// media stream, and returns the session to ready. In-flight stage results
// from before the restart are discarded when they land.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseStopped, PhaseCompleted, PhaseError, PhasePermissionDenied:
	default:
		return fmt.Errorf("%w: restart from %s", ErrInvalidPhase, s.phase)
	}

	s.generation++
	s.countdown.Cancel()
	if s.stream != nil {
		s.stream.Release()
		s.stream = nil
	}
	s.rec.Reset()
	s.transcript = ""
	s.softError = false
	s.feedback = ""
	s.feedbackDone = false
	s.errCode = ""
	s.remaining = s.cfg.DurationSeconds

	s.acquireLocked(ctx)
	s.log.Info("session restarted", slog.String("phase", string(s.phase)))
	return nil
}

// Cancel abandons the session and releases the media stream. Terminal.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseCancelled, PhaseCompleted:
		return fmt.Errorf("%w: cancel from %s", ErrInvalidPhase, s.phase)
	}

	s.generation++
	s.countdown.Cancel()
	s.rec.Stop()
	if s.stream != nil {
		s.stream.Release()
		s.stream = nil
	}
	s.phase = PhaseCancelled
	s.appendEventLocked("phase", string(PhaseCancelled))
	s.log.Info("session cancelled")
	return nil
}

// Snapshot returns a consistent view of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:               s.id,
		Phase:            s.phase,
		Question:         s.question,
		RemainingSeconds: s.remaining,
		ChunkCount:       s.rec.ChunkCount(),
		Transcript:       s.transcript,
		SoftError:        s.softError,
		Feedback:         s.feedback,
		FeedbackComplete: s.feedbackDone,
		ErrorCode:        s.errCode,
	}
}

func (s *Session) appendEventLocked(eventType, payload string) {
	if s.deps.Store == nil {
		return
	}
	evt := eventstore.Event{
		SessionID: s.id,
		Type:      eventType,
		Payload:   []byte(payload),
	}
	if err := s.deps.Store.AppendEvent(context.Background(), evt); err != nil {
		s.log.Warn("append event failed", slog.String("error", err.Error()))
	}
}
