// Package graph keeps the relationship graph between users, records,
// categories, ingredients and health conditions.
package graph

import (
	"context"

	"github.com/agenthands/bioguard/internal/core/model"
)

type Store interface {
	// Relate inserts rel. Inserting an existing (from, type, to) again only
	// refreshes its weight and properties.
	Relate(ctx context.Context, rel model.Relation) error
	// Neighbors returns the edges touching nodeID in either direction. An
	// empty relType matches every type.
	Neighbors(ctx context.Context, nodeID string, relType model.RelationType) ([]model.Relation, error)
	// DeleteNode removes the node and every edge touching it.
	DeleteNode(ctx context.Context, nodeID string) error
	Close(ctx context.Context) error
}
