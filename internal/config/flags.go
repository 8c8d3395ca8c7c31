package config

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agenthands/bioguard/internal/core/faults"
)

type Flag string

const (
	FlagAROverlay         Flag = "ar_overlay"
	FlagKnowledgeGraph    Flag = "knowledge_graph"
	FlagDigitalTwin       Flag = "digital_twin"
	FlagFederatedLearning Flag = "federated_learning"
	FlagSpectralAnalysis  Flag = "spectral_analysis"
	FlagNutritionDatabase Flag = "nutrition_database"
	FlagLocalLLM          Flag = "local_llm"
)

// FlagEnvPrefix is prepended to the upper-cased flag name, e.g.
// BIOGUARD_FEATURE_KNOWLEDGE_GRAPH=false.
const FlagEnvPrefix = "BIOGUARD_FEATURE_"

var flagDefaults = map[Flag]bool{
	FlagAROverlay:         true,
	FlagKnowledgeGraph:    true,
	FlagDigitalTwin:       false,
	FlagFederatedLearning: false,
	FlagSpectralAnalysis:  false,
	FlagNutritionDatabase: true,
	FlagLocalLLM:          false,
}

// KnownFlags lists every flag name in a stable order.
func KnownFlags() []Flag {
	out := make([]Flag, 0, len(flagDefaults))
	for f := range flagDefaults {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FeatureFlags is resolved once at startup and never mutated.
type FeatureFlags struct {
	values map[Flag]bool
}

// NewFeatureFlags applies overrides on top of the defaults. Unknown names are
// rejected.
func NewFeatureFlags(overrides map[Flag]bool) (FeatureFlags, error) {
	values := make(map[Flag]bool, len(flagDefaults))
	for f, v := range flagDefaults {
		values[f] = v
	}
	for f, v := range overrides {
		if _, ok := flagDefaults[f]; !ok {
			return FeatureFlags{}, &faults.ConfigError{Key: FlagEnvPrefix + strings.ToUpper(string(f)), Reason: "unknown feature flag"}
		}
		values[f] = v
	}
	return FeatureFlags{values: values}, nil
}

// DefaultFlags returns the documented defaults.
func DefaultFlags() FeatureFlags {
	flags, _ := NewFeatureFlags(nil)
	return flags
}

func (f FeatureFlags) Enabled(flag Flag) bool {
	if f.values == nil {
		return flagDefaults[flag]
	}
	return f.values[flag]
}

// All returns a copy keyed by flag name.
func (f FeatureFlags) All() map[string]bool {
	out := make(map[string]bool, len(flagDefaults))
	for _, flag := range KnownFlags() {
		out[string(flag)] = f.Enabled(flag)
	}
	return out
}

func parseFlags(env map[string]string) (FeatureFlags, error) {
	overrides := make(map[Flag]bool)
	for key, raw := range env {
		if !strings.HasPrefix(key, FlagEnvPrefix) {
			continue
		}
		name := Flag(strings.ToLower(strings.TrimPrefix(key, FlagEnvPrefix)))
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return FeatureFlags{}, &faults.ConfigError{Key: key, Reason: "expected a boolean", Err: err}
		}
		overrides[name] = v
	}
	return NewFeatureFlags(overrides)
}
