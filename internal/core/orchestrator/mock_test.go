package orchestrator

import (
	"context"
	"sync/atomic"

	"github.com/agenthands/bioguard/internal/core/model"
)

// MockProvider answers with Findings or Err. Block makes it wait for its
// context to end.
type MockProvider struct {
	ProviderName string
	Findings     *model.Findings
	Err          error
	Block        bool
	Calls        atomic.Int32
}

func (m *MockProvider) Name() string { return m.ProviderName }

func (m *MockProvider) Analyze(ctx context.Context, req *model.Request) (*model.Findings, error) {
	m.Calls.Add(1)
	if m.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.Err != nil {
		return nil, m.Err
	}
	f := m.Findings.Clone()
	return &f, nil
}

// StubbornProvider ignores its context and never returns until released.
type StubbornProvider struct {
	Release chan struct{}
}

func (s *StubbornProvider) Name() string { return "stubborn" }

func (s *StubbornProvider) Analyze(ctx context.Context, req *model.Request) (*model.Findings, error) {
	<-s.Release
	return &model.Findings{Product: "late"}, nil
}
