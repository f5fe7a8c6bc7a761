package indexer

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer/index"
)

// TermEntry describes one vocabulary term. DocumentFrequency counts distinct
// documents containing the term in either the title or the body.
type TermEntry struct {
	Term              string `json:"term"`
	ID                int    `json:"id"`
	DocumentFrequency int    `json:"documentFrequency"`
}

// TermTable is the corpus vocabulary. IDs are 1-based and assigned in
// insertion order.
type TermTable struct {
	entries map[string]*TermEntry
	order   []string
}

func NewTermTable() *TermTable {
	return &TermTable{entries: make(map[string]*TermEntry)}
}

// Get returns a copy of term's entry.
func (tt *TermTable) Get(term string) (TermEntry, bool) {
	e, ok := tt.entries[term]
	if !ok {
		return TermEntry{}, false
	}
	return *e, true
}

// DocumentFrequency returns term's df, or false when the term is unknown.
func (tt *TermTable) DocumentFrequency(term string) (int, bool) {
	e, ok := tt.entries[term]
	if !ok {
		return 0, false
	}
	return e.DocumentFrequency, true
}

func (tt *TermTable) Len() int { return len(tt.order) }

// Entries lists every term in ID order.
func (tt *TermTable) Entries() []TermEntry {
	out := make([]TermEntry, 0, len(tt.order))
	for _, t := range tt.order {
		out = append(out, *tt.entries[t])
	}
	return out
}

// set records df for term, allocating an ID on first sight.
func (tt *TermTable) set(term string, df int) {
	e, ok := tt.entries[term]
	if !ok {
		e = &TermEntry{Term: term, ID: len(tt.order) + 1}
		tt.entries[term] = e
		tt.order = append(tt.order, term)
	}
	e.DocumentFrequency = df
}

// documentFrequency counts the distinct documents across both lists.
func documentFrequency(title, body index.PostingList) int {
	docs := make(map[int]struct{}, len(title)+len(body))
	for _, p := range title {
		docs[p.DocID] = struct{}{}
	}
	for _, p := range body {
		docs[p.DocID] = struct{}{}
	}
	return len(docs)
}

// LoadTermTable rebuilds the vocabulary from the contents of the two
// indexes. Terms get IDs in lexical order.
func LoadTermTable(title, body *index.InvertedIndex) (*TermTable, error) {
	set := make(map[string]struct{})
	for _, t := range title.Terms() {
		set[t] = struct{}{}
	}
	for _, t := range body.Terms() {
		set[t] = struct{}{}
	}
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	tt := NewTermTable()
	for _, term := range terms {
		tp, err := title.GetPostings(term)
		if err != nil {
			return nil, err
		}
		bp, err := body.GetPostings(term)
		if err != nil {
			return nil, err
		}
		tt.set(term, documentFrequency(tp, bp))
	}
	return tt, nil
}
