package graph

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/agenthands/bioguard/internal/core/model"
)

// Memory is an adjacency-list graph for single-process deployments.
type Memory struct {
	mu    sync.RWMutex
	edges map[string]model.Relation
	adj   map[string]map[string]struct{} // node id -> edge keys
}

func NewMemory() *Memory {
	return &Memory{
		edges: make(map[string]model.Relation),
		adj:   make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Relate(_ context.Context, rel model.Relation) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	rel.Properties = maps.Clone(rel.Properties)

	m.mu.Lock()
	defer m.mu.Unlock()
	key := rel.Key()
	m.edges[key] = rel
	m.link(rel.From, key)
	m.link(rel.To, key)
	return nil
}

func (m *Memory) link(node, key string) {
	keys, ok := m.adj[node]
	if !ok {
		keys = make(map[string]struct{})
		m.adj[node] = keys
	}
	keys[key] = struct{}{}
}

func (m *Memory) Neighbors(_ context.Context, nodeID string, relType model.RelationType) ([]model.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Relation
	for key := range m.adj[nodeID] {
		rel := m.edges[key]
		if relType != "" && rel.Type != relType {
			continue
		}
		rel.Properties = maps.Clone(rel.Properties)
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (m *Memory) DeleteNode(_ context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.adj[nodeID] {
		rel := m.edges[key]
		delete(m.edges, key)
		other := rel.To
		if other == nodeID {
			other = rel.From
		}
		if keys, ok := m.adj[other]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.adj, other)
			}
		}
	}
	delete(m.adj, nodeID)
	return nil
}

// Len reports the number of edges.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.edges)
}

func (m *Memory) Close(context.Context) error { return nil }
