// Package community groups related records into clusters over the
// SIMILAR_TO graph.
package community

import (
	"errors"
	"sort"

	"github.com/agenthands/bioguard/internal/core/model"
)

type Detector interface {
	// Detect partitions nodes into clusters of two or more members. Edges
	// with an endpoint outside nodes are ignored.
	Detect(nodes []string, edges []model.Relation) ([][]string, error)
}

// NewDetector runs label propagation and falls back to connected components
// when it does not settle.
func NewDetector() Detector {
	return &FallbackDetector{
		Primary:  NewLabelPropagationDetector(),
		Fallback: &ComponentDetector{},
	}
}

type FallbackDetector struct {
	Primary  Detector
	Fallback Detector
}

func (d *FallbackDetector) Detect(nodes []string, edges []model.Relation) ([][]string, error) {
	clusters, err := d.Primary.Detect(nodes, edges)
	if errors.Is(err, ErrNotConverged) {
		return d.Fallback.Detect(nodes, edges)
	}
	return clusters, err
}

// ComponentDetector reports connected components.
type ComponentDetector struct{}

func (d *ComponentDetector) Detect(nodes []string, edges []model.Relation) ([][]string, error) {
	adj := adjacency(nodes, edges)

	visited := make(map[string]bool, len(nodes))
	var clusters [][]string
	for _, n := range nodes {
		if visited[n] {
			continue
		}
		var component []string
		stack := []string{n}
		visited[n] = true
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, u)
			for v := range adj[u] {
				if !visited[v] {
					visited[v] = true
					stack = append(stack, v)
				}
			}
		}
		if len(component) >= 2 {
			clusters = append(clusters, component)
		}
	}
	return normalize(clusters), nil
}

// adjacency builds an undirected weighted graph over nodes. Repeated edges
// between the same pair add up.
func adjacency(nodes []string, edges []model.Relation) map[string]map[string]float64 {
	adj := make(map[string]map[string]float64, len(nodes))
	for _, n := range nodes {
		adj[n] = make(map[string]float64)
	}
	for _, e := range edges {
		if e.From == e.To {
			continue
		}
		if _, ok := adj[e.From]; !ok {
			continue
		}
		if _, ok := adj[e.To]; !ok {
			continue
		}
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		adj[e.From][e.To] += w
		adj[e.To][e.From] += w
	}
	return adj
}

// normalize sorts members, then clusters by size (largest first) and first
// member.
func normalize(clusters [][]string) [][]string {
	for _, c := range clusters {
		sort.Strings(c)
	}
	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i]) != len(clusters[j]) {
			return len(clusters[i]) > len(clusters[j])
		}
		return clusters[i][0] < clusters[j][0]
	})
	return clusters
}
