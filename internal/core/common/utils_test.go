package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/bioguard/internal/core/faults"
)

type payload struct {
	Product string `json:"product"`
	Score   int    `json:"score"`
}

func TestParseJSON_StripsFences(t *testing.T) {
	got, err := ParseJSON[payload]("Sure!\n```json\n{\"product\": \"Oat Bar\", \"score\": 81}\n```")
	require.NoError(t, err)
	assert.Equal(t, payload{Product: "Oat Bar", Score: 81}, got)
}

func TestParseJSON_Malformed(t *testing.T) {
	_, err := ParseJSON[payload]("I cannot help with that.")
	assert.True(t, errors.Is(err, faults.ErrMalformed))

	_, err = ParseJSON[payload](`{"product": }`)
	assert.True(t, errors.Is(err, faults.ErrMalformed))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "a b c", Compact(" a\n b\t\tc "))
}
