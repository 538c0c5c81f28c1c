package transcribe

import (
	"context"
	"fmt"

	"github.com/karshdev/lift-core/internal/encoder"
)

type mockClient struct{}

func NewMockClient() Client {
	return &mockClient{}
}

func (m *mockClient) Transcribe(_ context.Context, asset encoder.Asset, _ string) (Result, error) {
	return Result{
		Text: fmt.Sprintf("[mock transcript bytes=%d]", len(asset.Bytes)),
	}, nil
}
