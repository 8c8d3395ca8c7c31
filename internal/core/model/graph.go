package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSelfLoop    = errors.New("self-loop relation")
	ErrInvalidNode = errors.New("invalid node id")
)

type RelationType string

const (
	RelOwns         RelationType = "OWNS"
	RelClassifiedAs RelationType = "CLASSIFIED_AS"
	RelSimilarTo    RelationType = "SIMILAR_TO"
	RelContains     RelationType = "CONTAINS"
	RelAffects      RelationType = "AFFECTS"
)

func (t RelationType) Valid() bool {
	switch t {
	case RelOwns, RelClassifiedAs, RelSimilarTo, RelContains, RelAffects:
		return true
	}
	return false
}

// Node ids are namespaced by entity type: "user:42", "record:<uuid>", etc.
var nodeLabels = map[string]string{
	"user":       "User",
	"record":     "Record",
	"category":   "Category",
	"ingredient": "Ingredient",
	"condition":  "Condition",
}

func UserNode(id string) string { return "user:" + id }
func RecordNode(id string) string { return "record:" + id }
func CategoryNode(c string) string { return "category:" + c }
func IngredientNode(n string) string { return "ingredient:" + NormalizeTerm(n) }
func ConditionNode(n string) string { return "condition:" + NormalizeTerm(n) }

// NormalizeTerm lower-cases, trims and joins words with underscores.
func NormalizeTerm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// NodeLabel returns the graph label for a namespaced node id.
func NodeLabel(id string) (string, error) {
	prefix, rest, ok := strings.Cut(id, ":")
	label, known := nodeLabels[prefix]
	if !ok || !known || rest == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidNode, id)
	}
	return label, nil
}

// NodeKey strips the namespace from a node id.
func NodeKey(id string) string {
	_, rest, _ := strings.Cut(id, ":")
	return rest
}

// Relation is a directed, typed edge. (From, To, Type) identifies it.
type Relation struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	Type       RelationType      `json:"type"`
	Weight     float64           `json:"weight,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

func NewRelation(from, to string, t RelationType) (Relation, error) {
	r := Relation{From: from, To: to, Type: t, Weight: 1}
	return r, r.Validate()
}

func (r Relation) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("unknown relation type %q", r.Type)
	}
	if _, err := NodeLabel(r.From); err != nil {
		return err
	}
	if _, err := NodeLabel(r.To); err != nil {
		return err
	}
	if r.From == r.To {
		return fmt.Errorf("%w: %s", ErrSelfLoop, r.From)
	}
	return nil
}

func (r Relation) Key() string {
	return r.From + "|" + string(r.Type) + "|" + r.To
}
