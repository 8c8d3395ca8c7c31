package model

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindFood     Kind = "food"
	KindDocument Kind = "document"
	KindChat     Kind = "chat"
)

// Kinds lists every request kind.
var Kinds = []Kind{KindFood, KindDocument, KindChat}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown request kind %q", s)
}

type MedicalProfile struct {
	Allergies  []string `json:"allergies,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

// Request is an analysis request. Build it with NewRequest; it is not mutated
// afterwards.
type Request struct {
	UserID    string          `validate:"required,max=128"`
	Kind      Kind            `validate:"required,oneof=food document chat"`
	Content   []byte          `validate:"required,min=1"`
	MIMEType  string          `validate:"omitempty,max=128"`
	Profile   *MedicalProfile `validate:"omitempty"`
	CreatedAt time.Time
}

func NewRequest(userID string, kind Kind, content []byte, mimeType string, profile *MedicalProfile) *Request {
	req := &Request{
		UserID:    userID,
		Kind:      kind,
		Content:   append([]byte(nil), content...),
		MIMEType:  mimeType,
		CreatedAt: time.Now().UTC(),
	}
	if profile != nil {
		req.Profile = &MedicalProfile{
			Allergies:  append([]string(nil), profile.Allergies...),
			Conditions: append([]string(nil), profile.Conditions...),
		}
	}
	return req
}

// IsImage reports whether the payload is image bytes rather than text.
func (r *Request) IsImage() bool {
	return strings.HasPrefix(r.MIMEType, "image/")
}

func (r *Request) Text() string {
	return string(r.Content)
}

// Barcode returns the payload as an EAN/UPC code when the request is plain
// text made of 8 to 14 digits.
func (r *Request) Barcode() (string, bool) {
	if r.IsImage() {
		return "", false
	}
	code := strings.TrimSpace(r.Text())
	if len(code) < 8 || len(code) > 14 {
		return "", false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return code, true
}
