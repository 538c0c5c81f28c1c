package encoder

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/karshdev/lift-core/internal/config"
)

type wavEncoder struct {
	cfg config.EncoderConfig
}

// NewWAVEncoder wraps raw little-endian 16-bit PCM into a WAV container.
// Used for capture devices that stream PCM directly instead of a compressed
// container, and in tests where no ffmpeg binary is available.
func NewWAVEncoder(cfg config.EncoderConfig) Encoder {
	return &wavEncoder{cfg: cfg}
}

func (e *wavEncoder) Encode(_ context.Context, sessionID string, raw []byte) (Asset, error) {
	if len(raw) == 0 {
		return Asset{}, fmt.Errorf("%w: empty artifact", ErrEncodingFailed)
	}
	if len(raw)%2 != 0 {
		return Asset{}, fmt.Errorf("%w: pcm payload not aligned", ErrEncodingFailed)
	}

	file, err := os.CreateTemp(os.TempDir(), "lift_asset_*.wav")
	if err != nil {
		return Asset{}, fmt.Errorf("temp file: %w", err)
	}
	path := file.Name()
	defer os.Remove(path)

	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: e.cfg.Channels, SampleRate: e.cfg.SampleRate}}
	samples := make([]int, len(raw)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, e.cfg.SampleRate, 16, e.cfg.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		file.Close()
		return Asset{}, fmt.Errorf("%w: write wav: %v", ErrEncodingFailed, err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		return Asset{}, fmt.Errorf("%w: close wav encoder: %v", ErrEncodingFailed, err)
	}
	if err := file.Close(); err != nil {
		return Asset{}, fmt.Errorf("close temp file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Asset{}, fmt.Errorf("read wav output: %w", err)
	}
	return Asset{
		Bytes:     data,
		MIMEType:  "audio/wav",
		SessionID: sessionID,
	}, nil
}
