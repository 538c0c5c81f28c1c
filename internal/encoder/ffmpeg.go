package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/karshdev/lift-core/internal/config"
	"github.com/mattn/go-shellwords"
)

type ffmpegEncoder struct {
	cmd []string
	cfg config.EncoderConfig
}

// NewFFmpegEncoder strips the video track and re-encodes the audio track to
// mono at the configured sample rate using an ffmpeg subprocess.
func NewFFmpegEncoder(cfg config.EncoderConfig) (Encoder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse encoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("encoder command is empty")
	}
	return &ffmpegEncoder{cmd: args, cfg: cfg}, nil
}

func (e *ffmpegEncoder) Encode(ctx context.Context, sessionID string, raw []byte) (Asset, error) {
	if len(raw) == 0 {
		return Asset{}, fmt.Errorf("%w: empty artifact", ErrEncodingFailed)
	}

	tmpDir := os.TempDir()
	name := uuid.NewString()
	inPath := filepath.Join(tmpDir, name+".webm")
	outPath := filepath.Join(tmpDir, name+"."+e.cfg.Format)
	if err := os.WriteFile(inPath, raw, 0o600); err != nil {
		return Asset{}, fmt.Errorf("write artifact: %w", err)
	}
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	cmdArgs := append([]string{}, e.cmd[1:]...)
	cmdArgs = append(cmdArgs,
		"-y",
		"-i", inPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ac", strconv.Itoa(e.cfg.Channels),
		"-ar", strconv.Itoa(e.cfg.SampleRate),
		"-f", e.cfg.Format,
		outPath,
	)

	command := exec.CommandContext(ctx, e.cmd[0], cmdArgs...)
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Asset{}, fmt.Errorf("%w: %v: %s", ErrEncodingFailed, err, stderr.String())
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: read output: %v", ErrEncodingFailed, err)
	}
	return Asset{
		Bytes:     data,
		MIMEType:  "audio/" + e.cfg.Format,
		SessionID: sessionID,
	}, nil
}
