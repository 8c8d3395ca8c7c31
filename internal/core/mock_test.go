package core

import (
	"context"
	"sync/atomic"

	"github.com/agenthands/bioguard/internal/core/model"
)

type MockProvider struct {
	ProviderName string
	Findings     model.Findings
	Err          error
	Calls        atomic.Int32
}

func (m *MockProvider) Name() string { return m.ProviderName }

func (m *MockProvider) Analyze(ctx context.Context, req *model.Request) (*model.Findings, error) {
	m.Calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	f := m.Findings.Clone()
	return &f, nil
}

type MockEmbedder struct {
	Vector []float32
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.Vector, nil
}
