// Package provider describes the analysis backends and computes the order in
// which they are tried.
package provider

import (
	"math"
	"sort"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/core/model"
)

// OfflineName is the provider that always terminates a chain.
const OfflineName = "offline"

// Input narrows the payloads a provider can read.
type Input int

const (
	// InputAny accepts text and images.
	InputAny Input = iota
	InputText
	// InputBarcode accepts text that is a product barcode.
	InputBarcode
)

type Descriptor struct {
	Name          string
	CredentialKey string
	Capabilities  []model.Kind
	Input         Input
	Priority      int
	// Flag gates the provider when set.
	Flag config.Flag
}

func (d Descriptor) Supports(kind model.Kind) bool {
	for _, k := range d.Capabilities {
		if k == kind {
			return true
		}
	}
	return false
}

// Accepts reports whether the provider can serve req at all. A provider that
// cannot is skipped without counting as a failure.
func (d Descriptor) Accepts(req *model.Request) bool {
	if !d.Supports(req.Kind) {
		return false
	}
	switch d.Input {
	case InputText:
		return !req.IsImage()
	case InputBarcode:
		_, ok := req.Barcode()
		return ok
	}
	return true
}

func (d Descriptor) IsOffline() bool {
	return d.Name == OfflineName
}

// Registry lists the known backends. Lower priority runs earlier.
var Registry = []Descriptor{
	{Name: "gemini", CredentialKey: "GEMINI_API_KEY", Capabilities: model.Kinds, Priority: 1},
	{Name: "openai", CredentialKey: "OPENAI_API_KEY", Capabilities: model.Kinds, Priority: 2},
	{Name: "claude", CredentialKey: "ANTHROPIC_API_KEY", Capabilities: []model.Kind{model.KindDocument, model.KindChat}, Input: InputText, Priority: 3},
	{Name: "ollama", CredentialKey: "OLLAMA_BASE_URL", Capabilities: []model.Kind{model.KindDocument, model.KindChat}, Input: InputText, Priority: 4, Flag: config.FlagLocalLLM},
	{Name: "openfoodfacts", CredentialKey: "OPENFOODFACTS_USER_AGENT", Capabilities: []model.Kind{model.KindFood}, Input: InputBarcode, Priority: 5, Flag: config.FlagNutritionDatabase},
	{Name: "fooddata", CredentialKey: "USDA_API_KEY", Capabilities: []model.Kind{model.KindFood}, Input: InputText, Priority: 6, Flag: config.FlagNutritionDatabase},
	{Name: "edamam", CredentialKey: "EDAMAM_APP_KEY", Capabilities: []model.Kind{model.KindFood}, Priority: 7, Flag: config.FlagNutritionDatabase},
	{Name: "nutritionix", CredentialKey: "NUTRITIONIX_API_KEY", Capabilities: []model.Kind{model.KindFood}, Input: InputText, Priority: 8, Flag: config.FlagNutritionDatabase},
}

// Offline needs no credentials and serves every kind.
var Offline = Descriptor{Name: OfflineName, Capabilities: model.Kinds, Priority: math.MaxInt}

// BuildOrder returns the eligible registry entries followed by Offline.
func BuildOrder(flags config.FeatureFlags, credentials map[string]bool) []Descriptor {
	return BuildOrderFrom(Registry, flags, credentials)
}

// BuildOrderFrom filters table to providers whose credential is present and
// whose flag, if any, is enabled, sorts them by priority then name, and
// appends Offline. The result is never empty.
func BuildOrderFrom(table []Descriptor, flags config.FeatureFlags, credentials map[string]bool) []Descriptor {
	chain := make([]Descriptor, 0, len(table)+1)
	for _, d := range table {
		if d.IsOffline() {
			continue
		}
		if !credentials[d.CredentialKey] {
			continue
		}
		if d.Flag != "" && !flags.Enabled(d.Flag) {
			continue
		}
		chain = append(chain, d)
	}
	sort.SliceStable(chain, func(i, j int) bool {
		if chain[i].Priority != chain[j].Priority {
			return chain[i].Priority < chain[j].Priority
		}
		return chain[i].Name < chain[j].Name
	})
	return append(chain, Offline)
}

// Names is a convenience for logs.
func Names(chain []Descriptor) []string {
	out := make([]string, len(chain))
	for i, d := range chain {
		out[i] = d.Name
	}
	return out
}
