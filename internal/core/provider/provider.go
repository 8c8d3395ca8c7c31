package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/core/common"
	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
	"github.com/agenthands/bioguard/internal/llm"
)

// Provider turns a request into findings or a typed failure.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, req *model.Request) (*model.Findings, error)
}

// MaxTextChars caps the document text sent to a model.
const MaxTextChars = 4000

// LLMProvider adapts a language model backend.
type LLMProvider struct {
	name    string
	Text    llm.LLMClient
	Vision  llm.VisionClient
	Prompts config.Prompts
}

func NewLLMProvider(name string, clients llm.Clients, prompts config.Prompts) *LLMProvider {
	return &LLMProvider{
		name:    name,
		Text:    clients.Text,
		Vision:  clients.Vision,
		Prompts: prompts,
	}
}

func (p *LLMProvider) Name() string { return p.name }

func (p *LLMProvider) Analyze(ctx context.Context, req *model.Request) (*model.Findings, error) {
	var (
		response string
		err      error
	)
	prompt := p.prompt(req)
	if req.IsImage() {
		if p.Vision == nil {
			return nil, fmt.Errorf("%w: %s cannot read images", faults.ErrUnavailable, p.name)
		}
		response, err = p.Vision.GenerateWithImage(ctx, prompt, req.Content, req.MIMEType)
	} else {
		if p.Text == nil {
			return nil, fmt.Errorf("%w: %s has no text model", faults.ErrUnavailable, p.name)
		}
		response, err = p.Text.Generate(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	findings, err := common.ParseJSON[model.Findings](response)
	if err != nil {
		return nil, err
	}
	findings.Normalize(faults.MaxMessageLen)
	return &findings, nil
}

func (p *LLMProvider) prompt(req *model.Request) string {
	var tmpl string
	switch req.Kind {
	case model.KindFood:
		tmpl = pick(p.Prompts.Food, defaultFoodPrompt)
	case model.KindDocument:
		tmpl = pick(p.Prompts.Document, defaultDocumentPrompt)
	default:
		tmpl = pick(p.Prompts.Chat, defaultChatPrompt)
	}

	body := ""
	if !req.IsImage() {
		body = req.Text()
		if r := []rune(body); len(r) > MaxTextChars {
			body = string(r[:MaxTextChars])
		}
	}
	prompt := strings.ReplaceAll(tmpl, "{{content}}", body)
	if req.Profile != nil {
		prompt += fmt.Sprintf("\nUser allergies: %s\nUser conditions: %s",
			strings.Join(req.Profile.Allergies, ", "), strings.Join(req.Profile.Conditions, ", "))
	}
	return prompt
}

func pick(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

const jsonShape = `Respond with a single JSON object with keys:
"product" (string), "health_score" (integer 0-100), "nova_score" (integer 1-4),
"verdict" ("SAFE", "WARNING" or "DANGER"), "warnings" (array of strings),
"ingredients" (array of lower-case strings), "summary" (string),
"confidence" (number 0-1).`

const defaultFoodPrompt = `You are a nutrition analyst. Analyze the food product shown or described.
{{content}}
` + jsonShape

const defaultDocumentPrompt = `You are a clinical document reviewer. Summarize the health-relevant
findings of the following document and rate the overall health risk.
{{content}}
` + jsonShape

const defaultChatPrompt = `You are a careful health assistant. Answer the user's question and
rate how healthy the discussed item or habit is.
Question: {{content}}
` + jsonShape
