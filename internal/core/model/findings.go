package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Score is an integer field that tolerates the shapes model output arrives
// in. Numbers and numeric strings decode to their integer value; anything
// else decodes to 0.
type Score int

func (s *Score) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		*s = 0
		return nil
	}
	*s = Score(ParseScore(v))
	return nil
}

// ParseScore coerces v to an int: "87" and 87.0 give 87, "n/a", "", nil and
// other values give 0. Finite values beyond the int32 range saturate.
func ParseScore(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		// bound before converting so huge values still clamp to the top
		return int(math.Round(math.Max(math.MinInt32, math.Min(math.MaxInt32, x))))
	case json.Number:
		return ParseScore(string(x))
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return ParseScore(f)
		}
		return 0
	default:
		return 0
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type Verdict string

const (
	VerdictSafe    Verdict = "SAFE"
	VerdictWarning Verdict = "WARNING"
	VerdictDanger  Verdict = "DANGER"
	VerdictUnknown Verdict = "UNKNOWN"
)

func ParseVerdict(s string) Verdict {
	switch v := Verdict(strings.ToUpper(strings.TrimSpace(s))); v {
	case VerdictSafe, VerdictWarning, VerdictDanger:
		return v
	default:
		return VerdictUnknown
	}
}

func (v *Verdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*v = VerdictUnknown
		return nil
	}
	*v = ParseVerdict(s)
	return nil
}

// Findings are the structured fields a provider extracts from a request.
type Findings struct {
	Product     string   `json:"product"`
	HealthScore Score    `json:"health_score"`
	Tier        Score    `json:"nova_score"`
	Verdict     Verdict  `json:"verdict"`
	Warnings    []string `json:"warnings"`
	Ingredients []string `json:"ingredients"`
	Summary     string   `json:"summary"`
	Confidence  float64  `json:"confidence"`
}

// Normalize clamps scores into range and trims list entries. maxWarning
// bounds the length of each warning.
func (f *Findings) Normalize(maxWarning int) {
	f.Product = strings.TrimSpace(f.Product)
	f.HealthScore = Score(clamp(int(f.HealthScore), 0, 100))
	f.Tier = Score(clamp(int(f.Tier), 0, 4))
	if f.Verdict == "" {
		f.Verdict = VerdictUnknown
	}
	f.Warnings = cleanList(f.Warnings, maxWarning)
	f.Ingredients = cleanList(f.Ingredients, 0)
	f.Summary = strings.TrimSpace(f.Summary)
	if f.Confidence < 0 || f.Confidence > 1 || math.IsNaN(f.Confidence) {
		f.Confidence = 0
	}
}

func cleanList(in []string, maxLen int) []string {
	out := in[:0:0]
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if maxLen > 0 && len([]rune(s)) > maxLen {
			s = string([]rune(s)[:maxLen])
		}
		out = append(out, s)
	}
	return out
}

func (f Findings) Clone() Findings {
	f.Warnings = append([]string(nil), f.Warnings...)
	f.Ingredients = append([]string(nil), f.Ingredients...)
	return f
}
