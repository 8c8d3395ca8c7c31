package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/bioguard/internal/core/model"
	"github.com/agenthands/bioguard/internal/driver"
)

// Memgraph stores the graph in Memgraph (or any Bolt-speaking database)
// through a driver.GraphDriver. Nodes carry their namespaced id in the "id"
// property.
type Memgraph struct {
	driver driver.GraphDriver
}

func NewMemgraph(ctx context.Context, d driver.GraphDriver) (*Memgraph, error) {
	if err := d.BuildIndices(ctx); err != nil {
		return nil, fmt.Errorf("build graph indices: %w", err)
	}
	return &Memgraph{driver: d}, nil
}

func (g *Memgraph) Relate(ctx context.Context, rel model.Relation) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	fromLabel, _ := model.NodeLabel(rel.From)
	toLabel, _ := model.NodeLabel(rel.To)

	props := make(map[string]interface{}, len(rel.Properties))
	for k, v := range rel.Properties {
		props[k] = v
	}
	params := map[string]interface{}{
		"from":       rel.From,
		"to":         rel.To,
		"weight":     rel.Weight,
		"props":      props,
		"created_at": time.Now().UTC().UnixNano(),
	}
	if _, err := g.driver.ExecuteQuery(ctx, driver.RelateQuery(fromLabel, toLabel, string(rel.Type)), params); err != nil {
		return fmt.Errorf("relate %s: %w", rel.Key(), err)
	}
	return nil
}

func (g *Memgraph) Neighbors(ctx context.Context, nodeID string, relType model.RelationType) ([]model.Relation, error) {
	label, err := model.NodeLabel(nodeID)
	if err != nil {
		return nil, err
	}
	if relType != "" && !relType.Valid() {
		return nil, fmt.Errorf("unknown relation type %q", relType)
	}

	result, err := g.driver.ExecuteQuery(ctx, driver.NeighborsQuery(label, string(relType)), map[string]interface{}{"id": nodeID})
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", nodeID, err)
	}

	rels := make([]model.Relation, 0, len(result.Records))
	for _, record := range result.Records {
		rels = append(rels, relationFromRecord(record))
	}
	return rels, nil
}

func relationFromRecord(record *neo4j.Record) model.Relation {
	var rel model.Relation
	if v, ok := record.Get("from"); ok {
		rel.From, _ = v.(string)
	}
	if v, ok := record.Get("to"); ok {
		rel.To, _ = v.(string)
	}
	if v, ok := record.Get("type"); ok {
		s, _ := v.(string)
		rel.Type = model.RelationType(s)
	}
	if v, ok := record.Get("weight"); ok {
		switch w := v.(type) {
		case float64:
			rel.Weight = w
		case int64:
			rel.Weight = float64(w)
		}
	}
	if v, ok := record.Get("props"); ok {
		if props, ok := v.(map[string]interface{}); ok {
			for k, val := range props {
				if k == "weight" || k == "created_at" {
					continue
				}
				if rel.Properties == nil {
					rel.Properties = make(map[string]string)
				}
				rel.Properties[k] = fmt.Sprint(val)
			}
		}
	}
	return rel
}

func (g *Memgraph) DeleteNode(ctx context.Context, nodeID string) error {
	label, err := model.NodeLabel(nodeID)
	if err != nil {
		return err
	}
	if _, err := g.driver.ExecuteQuery(ctx, driver.DeleteNodeQuery(label), map[string]interface{}{"id": nodeID}); err != nil {
		return fmt.Errorf("delete node %s: %w", nodeID, err)
	}
	return nil
}

func (g *Memgraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}
