package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/karshdev/lift-core/internal/config"
)

var (
	// ErrGenerationFailed means the generation endpoint rejected the request
	// (non-2xx status). Recoverable via restart.
	ErrGenerationFailed = errors.New("feedback: generation failed")
	// ErrStreamInterrupted means the transport dropped mid-stream. Fragments
	// delivered before the drop remain valid; the stream is not replayed.
	ErrStreamInterrupted = errors.New("feedback: stream interrupted")
)

// Request describes one feedback generation run.
type Request struct {
	SessionID  string
	Question   string
	Transcript string
}

// Generator streams critique text for an answered question. Fragments are
// delivered to the consumer strictly in arrival order; a non-nil consumer
// error aborts the stream. The stream is finite and not restartable.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(fragment string) error) error
}

// Prompt builds the natural-language prompt submitted to the generation
// service.
func Prompt(question, transcript string) string {
	return fmt.Sprintf(
		"Please give feedback on the following interview question: %s - given the following transcript: %s",
		question, transcript)
}

// FromConfig selects the generation backend.
func FromConfig(cfg config.FeedbackConfig) (Generator, error) {
	switch cfg.Mode {
	case "http":
		return NewHTTPGenerator(cfg), nil
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown feedback mode %q", cfg.Mode)
	}
}
