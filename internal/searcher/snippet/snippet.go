// Package snippet renders short excerpts around query term occurrences.
package snippet

import (
	"sort"
	"strings"
)

// DefaultWindow is the number of tokens kept on each side of a hit.
const DefaultWindow = 4

type span struct {
	start, end int
	terms      []string
}

// Build returns one excerpt per merged window. tokens is the field's token
// stream; positions maps each term to its ascending 1-based positions in it.
// For every term in terms that occurs, a window of ±window tokens is opened
// around its first occurrence; overlapping or adjacent windows merge. Each
// excerpt is rendered as "[Keywords: a, b] token token ...".
func Build(tokens []string, positions map[string][]int, terms []string, window int) []string {
	if window < 0 {
		window = DefaultWindow
	}
	n := len(tokens)
	if n == 0 {
		return nil
	}

	type hit struct {
		term string
		pos  int
	}
	hits := make([]hit, 0, len(terms))
	for _, t := range terms {
		ps := positions[t]
		if len(ps) == 0 || ps[0] < 1 || ps[0] > n {
			continue
		}
		hits = append(hits, hit{term: t, pos: ps[0]})
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	var spans []span
	for _, h := range hits {
		start, end := max(1, h.pos-window), min(n, h.pos+window)
		if k := len(spans) - 1; k >= 0 && start <= spans[k].end+1 {
			spans[k].end = max(spans[k].end, end)
			spans[k].terms = append(spans[k].terms, h.term)
			continue
		}
		spans = append(spans, span{start: start, end: end, terms: []string{h.term}})
	}

	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, "[Keywords: "+strings.Join(s.terms, ", ")+"] "+strings.Join(tokens[s.start-1:s.end], " "))
	}
	return out
}
