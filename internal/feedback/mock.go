package feedback

import (
	"context"
	"time"
)

type mockGenerator struct{}

func NewMockGenerator() Generator {
	return &mockGenerator{}
}

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(string) error) error {
	fragments := []string{"Good structure. ", "Add a concrete example ", "to strengthen the answer."}
	for _, fragment := range fragments {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		if err := consumer(fragment); err != nil {
			return err
		}
	}
	return nil
}
