package provider

import (
	"context"
)

type MockLLM struct {
	Response   string
	Err        error
	LastPrompt string
	Calls      int
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.Calls++
	m.LastPrompt = prompt
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

type MockVision struct {
	Response  string
	LastImage []byte
	LastMIME  string
}

func (m *MockVision) GenerateWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	m.LastImage = image
	m.LastMIME = mimeType
	return m.Response, nil
}
