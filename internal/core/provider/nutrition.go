package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
)

const nutritionTimeout = 15 * time.Second

// nutrients is a per-100g profile. Every nutrition database maps its own
// response into one before scoring.
type nutrients struct {
	Label       string
	Calories    float64
	Fat         float64
	Carbs       float64
	Sugar       float64
	Fiber       float64
	Protein     float64
	Tier        int
	Ingredients []string
}

// findings derives a 0-100 score and traffic-light warnings.
func (n nutrients) findings(confidence float64) model.Findings {
	score := 100 - 1.5*n.Fat - 0.5*n.Carbs + 2*n.Fiber + 0.5*n.Protein
	score = math.Max(0, math.Min(100, score))

	var warnings []string
	if n.Fat > 17.5 {
		warnings = append(warnings, "High fat")
	}
	if n.Sugar > 22.5 {
		warnings = append(warnings, "High sugar")
	}
	if n.Carbs > 60 {
		warnings = append(warnings, "High carbohydrate")
	}
	if n.Calories > 400 {
		warnings = append(warnings, "Energy dense")
	}

	verdict := model.VerdictSafe
	switch {
	case score < 40:
		verdict = model.VerdictDanger
	case score < 70:
		verdict = model.VerdictWarning
	}

	f := model.Findings{
		Product:     n.Label,
		HealthScore: model.Score(math.Round(score)),
		Tier:        model.Score(n.Tier),
		Verdict:     verdict,
		Warnings:    warnings,
		Ingredients: n.Ingredients,
		Summary: fmt.Sprintf("%s: %.0f kcal, %.1fg fat, %.1fg carbs, %.1fg protein per 100g.",
			n.Label, n.Calories, n.Fat, n.Carbs, n.Protein),
		Confidence: confidence,
	}
	f.Normalize(faults.MaxMessageLen)
	return f
}

// splitIngredients lower-cases and trims a label's ingredient list.
func splitIngredients(label, sep string) []string {
	var out []string
	for _, part := range strings.Split(label, sep) {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// doJSON sends req and decodes a 200 response into out. Returned errors
// never contain the request URL since several databases take their key as
// a query parameter.
func doJSON(client *http.Client, source string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", source, stripURL(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s status %d", faults.ErrRejected, source, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s status %d", faults.ErrUnavailable, source, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s status %d: %s", source, resp.StatusCode, faults.Redact(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", faults.ErrMalformed, source, err)
	}
	return nil
}

func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
