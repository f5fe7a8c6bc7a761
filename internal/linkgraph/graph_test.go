package linkgraph

import (
	"reflect"
	"testing"
)

func TestBuildCollapsesAndDrops(t *testing.T) {
	g := Build(3, []Edge{
		{1, 2}, {1, 3}, {1, 2}, // duplicate
		{2, 1},
		{3, 4}, // beyond committed size
		{0, 1}, // unresolved
	})
	if g.Size() != 3 {
		t.Fatalf("Size = %d", g.Size())
	}
	if g.EdgeCount() != 3 {
		t.Errorf("EdgeCount = %d, want 3", g.EdgeCount())
	}
	if g.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", g.Dropped())
	}
	if got := g.Children(1); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Errorf("Children(1) = %v", got)
	}
	if got := g.Parents(1); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("Parents(1) = %v", got)
	}
	if g.OutDegree(3) != 0 {
		t.Errorf("OutDegree(3) = %d, want 0", g.OutDegree(3))
	}
	if g.Children(9) != nil {
		t.Error("Children of unknown id should be nil")
	}
}

func TestMatrix(t *testing.T) {
	g := Build(3, []Edge{{1, 2}, {2, 3}, {3, 1}})
	want := [][]uint8{
		{0, 1, 0},
		{0, 0, 1},
		{1, 0, 0},
	}
	if got := g.Matrix(); !reflect.DeepEqual(got, want) {
		t.Errorf("Matrix = %v, want %v", got, want)
	}
}

func TestEmptyGraph(t *testing.T) {
	g := Build(0, []Edge{{1, 2}})
	if len(g.Matrix()) != 0 {
		t.Error("empty graph should have empty matrix")
	}
	if g.Dropped() != 1 {
		t.Errorf("Dropped = %d", g.Dropped())
	}
}
