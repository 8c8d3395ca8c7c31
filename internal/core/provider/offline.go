package provider

import (
	"context"
	"fmt"

	"github.com/agenthands/bioguard/internal/core/common"
	"github.com/agenthands/bioguard/internal/core/model"
)

// OfflineProvider returns fixed, non-AI findings per request kind. It never
// fails and never touches the network.
type OfflineProvider struct{}

func NewOffline() *OfflineProvider { return &OfflineProvider{} }

func (OfflineProvider) Name() string { return OfflineName }

func (OfflineProvider) Analyze(_ context.Context, req *model.Request) (*model.Findings, error) {
	var f model.Findings
	switch req.Kind {
	case model.KindFood:
		f = model.Findings{
			Product:     "Unverified product",
			HealthScore: 72,
			Verdict:     model.VerdictWarning,
			Warnings:    []string{"High sugar", "Moderate sodium"},
			Summary:     "Automated analysis is unavailable; showing a generic estimate. Check the label yourself.",
		}
	case model.KindDocument:
		f = model.Findings{
			Product: "Document",
			Verdict: model.VerdictUnknown,
			Summary: fmt.Sprintf("Received a %d-byte document. Automated review is unavailable; please try again later.", len(req.Content)),
		}
	default:
		f = model.Findings{
			Product: common.Compact(req.Text()),
			Verdict: model.VerdictUnknown,
			Summary: "The assistant is temporarily unavailable. Please try again later.",
		}
	}
	f.Normalize(0)
	if r := []rune(f.Product); len(r) > 80 {
		f.Product = string(r[:80])
	}
	return &f, nil
}
