package oracle

import (
	"context"
	"fmt"
)

// Mock is a deterministic Oracle for tests and local development.
type Mock struct {
	// GenerateFunc overrides the default canned response when set.
	GenerateFunc func(ctx context.Context, req Request) (Response, error)

	// Healthy is returned by Health.
	Healthy bool

	// Calls records every request, in order.
	Calls []Request
}

// NewMock creates a healthy Mock with the default canned response.
func NewMock() *Mock {
	return &Mock{Healthy: true}
}

// Generate implements Oracle.
func (m *Mock) Generate(ctx context.Context, req Request) (Response, error) {
	m.Calls = append(m.Calls, req)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return Response{
		Content:   fmt.Sprintf("The dungeon master considers %q and the story continues.", req.CurrentMessage),
		LatencyMs: 42,
	}, nil
}

// Health implements Oracle.
func (m *Mock) Health(ctx context.Context) bool {
	return m.Healthy
}
