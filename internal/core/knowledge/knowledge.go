// Package knowledge holds the ingredient to health-condition facts used to
// flag conflicts with a user's medical profile.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/bioguard/internal/core/model"
	"github.com/agenthands/bioguard/internal/storage/graph"
)

type Fact struct {
	Ingredient string
	Condition  string
	Relation   string
	Severity   string
}

var Seed = []Fact{
	{"sodium", "hypertension", "increases_risk", "high"},
	{"sodium", "blood_pressure", "increases", "high"},
	{"sugar", "diabetes", "increases_risk", "high"},
	{"sugar", "glucose_spike", "causes", "high"},
	{"saturated_fat", "cholesterol", "increases", "high"},
	{"preservatives", "digestive_health", "harms", "medium"},
	{"artificial_colors", "hyperactivity", "may_trigger", "low"},
	{"gluten", "celiac_disease", "triggers", "high"},
	{"lactose", "lactose_intolerance", "triggers", "high"},
	{"peanuts", "peanut_allergy", "triggers", "high"},
	{"trans_fat", "heart_disease", "increases_risk", "high"},
}

// Base indexes facts by normalized ingredient name.
type Base struct {
	byIngredient map[string][]Fact
}

func New(facts []Fact) *Base {
	b := &Base{byIngredient: make(map[string][]Fact)}
	for _, f := range facts {
		key := model.NormalizeTerm(f.Ingredient)
		f.Condition = model.NormalizeTerm(f.Condition)
		b.byIngredient[key] = append(b.byIngredient[key], f)
	}
	return b
}

func Default() *Base { return New(Seed) }

// FindConflicts returns, in ingredient order, every fact whose ingredient
// matches one of ingredients and whose condition contains one of conditions
// (case-insensitive; spaces and underscores are equivalent).
func (b *Base) FindConflicts(ingredients, conditions []string) []model.Conflict {
	wanted := make([]string, 0, len(conditions))
	for _, c := range conditions {
		if n := model.NormalizeTerm(c); n != "" {
			wanted = append(wanted, n)
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	var out []model.Conflict
	for _, ing := range ingredients {
		for _, f := range b.byIngredient[model.NormalizeTerm(ing)] {
			for _, w := range wanted {
				if strings.Contains(f.Condition, w) {
					out = append(out, model.Conflict{
						Ingredient: ing,
						Condition:  f.Condition,
						Relation:   f.Relation,
						Severity:   f.Severity,
					})
					break
				}
			}
		}
	}
	return out
}

// Sync writes every fact to g as an AFFECTS edge.
func (b *Base) Sync(ctx context.Context, g graph.Store) error {
	for ing, facts := range b.byIngredient {
		for _, f := range facts {
			rel, err := model.NewRelation(model.IngredientNode(ing), model.ConditionNode(f.Condition), model.RelAffects)
			if err != nil {
				return err
			}
			rel.Properties = map[string]string{"relationship": f.Relation, "severity": f.Severity}
			if err := g.Relate(ctx, rel); err != nil {
				return fmt.Errorf("sync fact %s: %w", rel.Key(), err)
			}
		}
	}
	return nil
}
