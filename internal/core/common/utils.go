package common

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agenthands/bioguard/internal/core/faults"
)

// ParseJSON extracts the outermost JSON object from a model response and
// decodes it into T. Code fences and chatter around the object are ignored.
// Failures wrap faults.ErrMalformed.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start == -1 || end < start {
		return zero, fmt.Errorf("%w: no JSON object in response", faults.ErrMalformed)
	}
	payload := response[start : end+1]

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return zero, fmt.Errorf("%w: %v", faults.ErrMalformed, err)
	}
	return result, nil
}

// Compact collapses whitespace so prompts and logs stay on one line.
func Compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
