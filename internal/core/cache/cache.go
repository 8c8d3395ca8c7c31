// Package cache memoizes analysis results by request fingerprint.
package cache

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/agenthands/bioguard/internal/core/model"
)

// Cache stores results until their TTL passes. Expiry is checked on read;
// nothing sweeps in the background.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (*model.Result, bool)
	Put(ctx context.Context, fingerprint string, res *model.Result, ttl time.Duration) error
	Close() error
}

// Fingerprint is a keyed hash of the request kind and its normalized
// content. Text kinds are compared case- and whitespace-insensitively; image
// payloads byte for byte.
func Fingerprint(secret string, req *model.Request) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(req.Kind))
	mac.Write([]byte{0})
	if req.IsImage() {
		mac.Write([]byte(req.MIMEType))
		mac.Write([]byte{0})
		mac.Write(req.Content)
	} else {
		mac.Write([]byte(normalizeText(req.Text())))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
