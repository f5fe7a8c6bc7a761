package pagerank

import (
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/linkgraph"
)

const eps = 1e-9

func TestTwoNodeRing(t *testing.T) {
	pr := New([][]uint8{
		{0, 1},
		{1, 0},
	})
	pr.Compute(5, 0.8)
	for id := 1; id <= 2; id++ {
		if math.Abs(pr.Score(id)-0.5) > 1e-6 {
			t.Errorf("Score(%d) = %v, want 0.5", id, pr.Score(id))
		}
	}
}

func TestConservation(t *testing.T) {
	g := linkgraph.Build(5, []linkgraph.Edge{
		{From: 1, To: 2}, {From: 1, To: 3}, {From: 2, To: 3}, {From: 3, To: 1}, {From: 4, To: 3}, {From: 4, To: 5},
		// 5 is dangling
	})
	pr := New(g.Matrix())
	for it := 1; it <= 10; it++ {
		pr.Compute(1, 0.85)
		if math.Abs(pr.Sum()-1) > eps {
			t.Fatalf("after pass %d sum = %v", it, pr.Sum())
		}
	}
	if pr.Score(3) <= pr.Score(4) {
		t.Errorf("heavily linked doc 3 (%v) should outrank unlinked doc 4 (%v)", pr.Score(3), pr.Score(4))
	}
}

func TestAllDangling(t *testing.T) {
	pr := New([][]uint8{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}})
	pr.Compute(3, 0.85)
	for id := 1; id <= 3; id++ {
		if math.Abs(pr.Score(id)-1.0/3) > eps {
			t.Errorf("Score(%d) = %v, want 1/3", id, pr.Score(id))
		}
	}
}

func TestInitialAndUnknown(t *testing.T) {
	pr := New([][]uint8{{0, 1, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}})
	if pr.Score(1) != 0.25 {
		t.Errorf("initial score = %v, want 0.25", pr.Score(1))
	}
	if pr.Score(0) != 0 || pr.Score(5) != 0 {
		t.Error("unknown ids must score 0")
	}
	if len(pr.Scores()) != 4 {
		t.Errorf("Scores len = %d", len(pr.Scores()))
	}
}

func TestEmpty(t *testing.T) {
	pr := New(nil)
	pr.Compute(10, 0.85)
	if pr.Sum() != 0 {
		t.Errorf("empty sum = %v", pr.Sum())
	}
}

func BenchmarkCompute(b *testing.B) {
	const n = 300
	edges := make([]linkgraph.Edge, 0, n*4)
	for i := 1; i <= n; i++ {
		for k := 1; k <= 4; k++ {
			edges = append(edges, linkgraph.Edge{From: i, To: (i*k)%n + 1})
		}
	}
	m := linkgraph.Build(n, edges).Matrix()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		New(m).Compute(20, 0.85)
	}
}
