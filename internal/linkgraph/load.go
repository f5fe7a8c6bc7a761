package linkgraph

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/store"
)

// Source is the part of the page store a graph is loaded from.
type Source interface {
	MaxPageID(ctx context.Context) (int, error)
	GetAllRelationships(ctx context.Context) ([]store.Relationship, error)
}

// Load builds the graph over documents 1..N, N being the highest stored page
// ID. Relationships whose endpoints have no page are dropped.
func Load(ctx context.Context, src Source) (*Graph, error) {
	n, err := src.MaxPageID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading page count: %w", err)
	}
	rels, err := src.GetAllRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading relationships: %w", err)
	}
	edges := make([]Edge, 0, len(rels))
	for _, rel := range rels {
		edges = append(edges, Edge{From: rel.ParentID, To: rel.ChildID})
	}
	return Build(n, edges), nil
}
