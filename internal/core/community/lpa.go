package community

import (
	"errors"

	"github.com/agenthands/bioguard/internal/core/model"
)

// ErrNotConverged is returned when labels still change after MaxIterations.
var ErrNotConverged = errors.New("label propagation did not converge")

// LabelPropagationDetector implements community detection using the Label
// Propagation Algorithm. Nodes are visited in input order, so the result is
// deterministic.
type LabelPropagationDetector struct {
	MaxIterations int
}

func NewLabelPropagationDetector() *LabelPropagationDetector {
	return &LabelPropagationDetector{
		MaxIterations: 20,
	}
}

func (d *LabelPropagationDetector) Detect(nodes []string, edges []model.Relation) ([][]string, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	adj := adjacency(nodes, edges)

	// Each node starts in its own community.
	labels := make(map[string]string, len(nodes))
	for _, n := range nodes {
		labels[n] = n
	}

	maxIter := d.MaxIterations
	if maxIter <= 0 {
		maxIter = 20
	}
	converged := false
	for iter := 0; iter < maxIter; iter++ {
		changed := 0
		for _, u := range nodes {
			neighbors := adj[u]
			if len(neighbors) == 0 {
				continue
			}

			scores := make(map[string]float64)
			best := 0.0
			for v, w := range neighbors {
				l := labels[v]
				scores[l] += w
				if scores[l] > best {
					best = scores[l]
				}
			}

			// Ties keep the current label, else the lexicographically largest.
			next := labels[u]
			if scores[next] != best {
				next = ""
				for l, s := range scores {
					if s == best && l > next {
						next = l
					}
				}
			}
			if labels[u] != next {
				labels[u] = next
				changed++
			}
		}
		if changed == 0 {
			converged = true
			break
		}
	}
	if !converged {
		return nil, ErrNotConverged
	}

	groups := make(map[string][]string)
	for _, n := range nodes {
		groups[labels[n]] = append(groups[labels[n]], n)
	}
	var clusters [][]string
	for _, g := range groups {
		if len(g) >= 2 {
			clusters = append(clusters, g)
		}
	}
	return normalize(clusters), nil
}
