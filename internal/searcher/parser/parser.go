// Package parser splits a raw query into quoted phrases and free terms.
package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/textproc"
)

var quoted = regexp.MustCompile(`"([^"]*)"`)

// PhraseTerm is one normalised word of a phrase. Offset is its token
// distance from the start of the phrase, so a dropped stopword leaves a gap.
type PhraseTerm struct {
	Term   string `json:"term"`
	Offset int    `json:"offset"`
}

type Phrase struct {
	Raw   string       `json:"raw"`
	Terms []PhraseTerm `json:"terms"`
}

// Query is a parsed search request.
type Query struct {
	Raw string `json:"raw"`
	// Terms is the distinct scoring vocabulary in first-seen order: free
	// words followed by phrase words not already present.
	Terms   []string `json:"terms"`
	Phrases []Phrase `json:"phrases,omitempty"`
}

// Empty reports whether nothing in the query survived normalisation.
func (q *Query) Empty() bool {
	return len(q.Terms) == 0
}

// Parse extracts "quoted phrases" from raw and normalises the remaining
// words with a. An unmatched trailing quote is treated as ordinary text.
func Parse(raw string, a *textproc.Analyzer) *Query {
	q := &Query{Raw: raw, Terms: make([]string, 0)}
	seen := make(map[string]struct{})
	addTerm := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		q.Terms = append(q.Terms, t)
	}

	free := quoted.ReplaceAllString(raw, " ")
	for _, t := range a.QueryTerms(free) {
		addTerm(t)
	}

	for _, m := range quoted.FindAllStringSubmatch(raw, -1) {
		text := strings.TrimSpace(m[1])
		if text == "" {
			continue
		}
		p := Phrase{Raw: text}
		for i, tok := range textproc.Tokenize(text) {
			term, ok := a.Normalize(tok)
			if !ok {
				continue
			}
			p.Terms = append(p.Terms, PhraseTerm{Term: term, Offset: i})
		}
		if len(p.Terms) == 0 {
			continue
		}
		// Re-base so the first kept word sits at offset 0.
		base := p.Terms[0].Offset
		for i := range p.Terms {
			p.Terms[i].Offset -= base
			addTerm(p.Terms[i].Term)
		}
		q.Phrases = append(q.Phrases, p)
	}
	return q
}

// Key is a canonical form of the query used for caching: sorted distinct
// terms plus phrases in order.
func (q *Query) Key() string {
	terms := append([]string(nil), q.Terms...)
	sort.Strings(terms)
	var sb strings.Builder
	sb.WriteString(strings.Join(terms, ","))
	for _, p := range q.Phrases {
		sb.WriteString("|\"")
		for i, t := range p.Terms {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(t.Term)
			sb.WriteByte('@')
			sb.WriteString(strconv.Itoa(t.Offset))
		}
		sb.WriteByte('"')
	}
	return sb.String()
}
