package recorder

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func TestLifecycle(t *testing.T) {
	r := New()
	if r.State() != StateIdle {
		t.Fatalf("expected idle, got %s", r.State())
	}
	if err := r.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start before arm should fail, got %v", err)
	}
	if err := r.Arm(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.State() != StateRecording {
		t.Fatalf("expected recording, got %s", r.State())
	}
}

func TestArtifactNotReadyBeforeStop(t *testing.T) {
	r := New()
	if _, err := r.Artifact(); !errors.Is(err, ErrArtifactNotReady) {
		t.Fatalf("expected ErrArtifactNotReady, got %v", err)
	}
	_ = r.Arm()
	_ = r.Start()
	r.OnChunk([]byte("abc"))
	if _, err := r.Artifact(); !errors.Is(err, ErrArtifactNotReady) {
		t.Fatalf("expected ErrArtifactNotReady while recording, got %v", err)
	}
}

func TestArtifactConcatenatesInOrder(t *testing.T) {
	r := New()
	_ = r.Arm()
	_ = r.Start()
	r.OnChunk([]byte("one "))
	r.OnChunk([]byte("two "))
	r.OnChunk([]byte("three"))
	if !r.Stop() {
		t.Fatal("expected first stop to transition")
	}
	artifact, err := r.Artifact()
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if !bytes.Equal(artifact, []byte("one two three")) {
		t.Fatalf("unexpected artifact: %q", artifact)
	}
}

func TestChunksOutsideRecordingDiscarded(t *testing.T) {
	r := New()
	r.OnChunk([]byte("early"))
	_ = r.Arm()
	r.OnChunk([]byte("armed"))
	_ = r.Start()
	r.OnChunk([]byte("kept"))
	r.Stop()
	r.OnChunk([]byte("late"))
	artifact, err := r.Artifact()
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if !bytes.Equal(artifact, []byte("kept")) {
		t.Fatalf("expected only in-recording chunk, got %q", artifact)
	}
}

func TestDoubleStopSingleTransition(t *testing.T) {
	r := New()
	_ = r.Arm()
	_ = r.Start()

	var transitions int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Stop() {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if transitions != 1 {
		t.Fatalf("expected exactly one stop transition, got %d", transitions)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
}

func TestResetClearsChunks(t *testing.T) {
	r := New()
	_ = r.Arm()
	_ = r.Start()
	r.OnChunk([]byte("data"))
	r.Stop()
	r.Reset()
	if r.State() != StateIdle {
		t.Fatalf("expected idle after reset, got %s", r.State())
	}
	if r.ChunkCount() != 0 {
		t.Fatalf("expected no chunks after reset, got %d", r.ChunkCount())
	}
}

func TestOnChunkCopiesBuffer(t *testing.T) {
	r := New()
	_ = r.Arm()
	_ = r.Start()
	buf := []byte("abcd")
	r.OnChunk(buf)
	buf[0] = 'z'
	r.Stop()
	artifact, _ := r.Artifact()
	if !bytes.Equal(artifact, []byte("abcd")) {
		t.Fatalf("recorder must copy chunk data, got %q", artifact)
	}
}
