// Package linkgraph materialises the crawl's link relationships as an
// adjacency structure over document IDs 1..N.
package linkgraph

import "sort"

// Edge is a directed link between two document IDs.
type Edge struct {
	From int
	To   int
}

// Graph is immutable after Build.
type Graph struct {
	n        int
	out      [][]int
	in       [][]int
	dropped  int
	edgeSize int
}

// Build creates a graph over documents 1..n. Duplicate edges collapse to one;
// edges touching an ID outside 1..n (pages never committed) are dropped so a
// partial crawl still yields a consistent graph.
func Build(n int, edges []Edge) *Graph {
	if n < 0 {
		n = 0
	}
	g := &Graph{
		n:   n,
		out: make([][]int, n),
		in:  make([][]int, n),
	}
	seen := make(map[Edge]struct{}, len(edges))
	for _, e := range edges {
		if e.From < 1 || e.From > n || e.To < 1 || e.To > n {
			g.dropped++
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		g.out[e.From-1] = append(g.out[e.From-1], e.To)
		g.in[e.To-1] = append(g.in[e.To-1], e.From)
		g.edgeSize++
	}
	for i := 0; i < n; i++ {
		sort.Ints(g.out[i])
		sort.Ints(g.in[i])
	}
	return g
}

// Size is the number of documents N.
func (g *Graph) Size() int { return g.n }

// EdgeCount is the number of distinct edges kept.
func (g *Graph) EdgeCount() int { return g.edgeSize }

// Dropped counts edges discarded for pointing outside 1..N.
func (g *Graph) Dropped() int { return g.dropped }

func (g *Graph) valid(id int) bool { return id >= 1 && id <= g.n }

// Children returns the documents id links to, ascending.
func (g *Graph) Children(id int) []int {
	if !g.valid(id) {
		return nil
	}
	return append([]int(nil), g.out[id-1]...)
}

// Parents returns the documents linking to id, ascending.
func (g *Graph) Parents(id int) []int {
	if !g.valid(id) {
		return nil
	}
	return append([]int(nil), g.in[id-1]...)
}

func (g *Graph) OutDegree(id int) int {
	if !g.valid(id) {
		return 0
	}
	return len(g.out[id-1])
}

// Matrix returns the dense N×N 0/1 link matrix: m[i][j] == 1 iff document
// i+1 links to document j+1.
func (g *Graph) Matrix() [][]uint8 {
	m := make([][]uint8, g.n)
	cells := make([]uint8, g.n*g.n)
	for i := range m {
		m[i] = cells[i*g.n : (i+1)*g.n]
		for _, to := range g.out[i] {
			m[i][to-1] = 1
		}
	}
	return m
}
