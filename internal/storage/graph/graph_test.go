package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/bioguard/internal/core/model"
)

func rel(t *testing.T, from, to string, typ model.RelationType) model.Relation {
	t.Helper()
	r, err := model.NewRelation(from, to, typ)
	require.NoError(t, err)
	return r
}

func TestMemory_RelateIsIdempotent(t *testing.T) {
	g := NewMemory()
	ctx := context.Background()
	r := rel(t, model.UserNode("u1"), model.RecordNode("r1"), model.RelOwns)

	require.NoError(t, g.Relate(ctx, r))
	require.NoError(t, g.Relate(ctx, r))
	assert.Equal(t, 1, g.Len())

	out, err := g.Neighbors(ctx, model.RecordNode("r1"), "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.UserNode("u1"), out[0].From)
}

func TestMemory_RejectsSelfLoop(t *testing.T) {
	g := NewMemory()
	err := g.Relate(context.Background(), model.Relation{
		From: model.RecordNode("r1"),
		To:   model.RecordNode("r1"),
		Type: model.RelSimilarTo,
	})
	assert.True(t, errors.Is(err, model.ErrSelfLoop))
	assert.Zero(t, g.Len())
}

func TestMemory_NeighborsFilterAndDelete(t *testing.T) {
	g := NewMemory()
	ctx := context.Background()
	rec := model.RecordNode("r1")

	require.NoError(t, g.Relate(ctx, rel(t, model.UserNode("u1"), rec, model.RelOwns)))
	require.NoError(t, g.Relate(ctx, rel(t, rec, model.CategoryNode("food/safe"), model.RelClassifiedAs)))
	require.NoError(t, g.Relate(ctx, rel(t, rec, model.RecordNode("r2"), model.RelSimilarTo)))

	similar, err := g.Neighbors(ctx, rec, model.RelSimilarTo)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, model.RecordNode("r2"), similar[0].To)

	require.NoError(t, g.DeleteNode(ctx, rec))
	assert.Zero(t, g.Len())
	out, err := g.Neighbors(ctx, model.RecordNode("r2"), "")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMemgraph_Relate(t *testing.T) {
	d := &MockDriver{}
	g, err := NewMemgraph(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, d.Indexed)

	r := rel(t, model.RecordNode("r1"), model.IngredientNode("Palm Oil"), model.RelContains)
	r.Properties = map[string]string{"source": "analysis"}
	require.NoError(t, g.Relate(context.Background(), r))

	assert.Contains(t, d.QueryExecuted, "MERGE (a:Record {id: $from})")
	assert.Contains(t, d.QueryExecuted, "MERGE (b:Ingredient {id: $to})")
	assert.Contains(t, d.QueryExecuted, "[r:CONTAINS]")
	assert.Equal(t, "ingredient:palm_oil", d.QueryParams["to"])
	assert.Equal(t, map[string]interface{}{"source": "analysis"}, d.QueryParams["props"])
}

func TestMemgraph_RejectsBeforeQuery(t *testing.T) {
	d := &MockDriver{}
	g, err := NewMemgraph(context.Background(), d)
	require.NoError(t, err)

	err = g.Relate(context.Background(), model.Relation{From: "record:a", To: "record:a", Type: model.RelSimilarTo})
	assert.ErrorIs(t, err, model.ErrSelfLoop)
	assert.Empty(t, d.QueryExecuted)

	_, err = g.Neighbors(context.Background(), "bogus", "")
	assert.ErrorIs(t, err, model.ErrInvalidNode)
}

func TestMemgraph_Neighbors(t *testing.T) {
	d := &MockDriver{
		MockResult: neo4j.EagerResult{
			Keys: []string{"from", "to", "type", "weight", "props"},
			Records: []*neo4j.Record{{
				Keys: []string{"from", "to", "type", "weight", "props"},
				Values: []any{
					"record:r1", "record:r2", "SIMILAR_TO", 0.93,
					map[string]interface{}{"weight": 0.93, "created_at": int64(1), "score": "0.93"},
				},
			}},
		},
	}
	g, err := NewMemgraph(context.Background(), d)
	require.NoError(t, err)

	out, err := g.Neighbors(context.Background(), "record:r1", model.RelSimilarTo)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.Relation{
		From:       "record:r1",
		To:         "record:r2",
		Type:       model.RelSimilarTo,
		Weight:     0.93,
		Properties: map[string]string{"score": "0.93"},
	}, out[0])
	assert.Contains(t, d.QueryExecuted, "[r:SIMILAR_TO]")
}

func TestMemgraph_DeleteNode(t *testing.T) {
	d := &MockDriver{}
	g, err := NewMemgraph(context.Background(), d)
	require.NoError(t, err)

	require.NoError(t, g.DeleteNode(context.Background(), "user:u1"))
	assert.Contains(t, d.QueryExecuted, "MATCH (n:User {id: $id})")
	assert.Contains(t, d.QueryExecuted, "DETACH DELETE n")

	d.Err = errors.New("boom")
	assert.Error(t, g.DeleteNode(context.Background(), "user:u1"))
}
