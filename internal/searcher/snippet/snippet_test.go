package snippet

import (
	"reflect"
	"strings"
	"testing"
)

func tokens(s string) []string { return strings.Fields(s) }

func TestBuildSingleWindow(t *testing.T) {
	toks := tokens("a b c d e f g h i j k l m n o")
	got := Build(toks, map[string][]int{"h": {8}}, []string{"h"}, 4)
	want := []string{"[Keywords: h] d e f g h i j k l"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildClampsAtEdges(t *testing.T) {
	toks := tokens("one two three four five six")
	got := Build(toks, map[string][]int{"one": {1}, "six": {6}}, []string{"one", "six"}, 1)
	want := []string{"[Keywords: one] one two", "[Keywords: six] five six"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildMergesOverlapping(t *testing.T) {
	toks := tokens("a b c d e f g h i j k l m n o p q r s t")
	pos := map[string][]int{"c": {3, 15}, "f": {6}, "t": {20}}
	got := Build(toks, pos, []string{"f", "c", "t"}, 2)
	want := []string{
		"[Keywords: c, f] a b c d e f g h",
		"[Keywords: t] r s t",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildMergesAdjacent(t *testing.T) {
	toks := tokens("a b c d e f g h i j")
	got := Build(toks, map[string][]int{"b": {2}, "g": {7}}, []string{"b", "g"}, 2)
	// [1,4] and [5,9] touch
	want := []string{"[Keywords: b, g] a b c d e f g h i"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildNoHits(t *testing.T) {
	if got := Build(tokens("x y z"), map[string][]int{}, []string{"q"}, 4); got != nil {
		t.Errorf("got %q, want nil", got)
	}
	if got := Build(nil, map[string][]int{"q": {1}}, []string{"q"}, 4); got != nil {
		t.Errorf("got %q for empty text", got)
	}
}
