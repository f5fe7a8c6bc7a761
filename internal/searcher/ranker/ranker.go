// Package ranker scores documents against a query with per-field TF-IDF
// cosine similarity, applies the phrase filter and optional PageRank
// blending, and orders the results.
package ranker

import (
	"log/slog"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/parser"
)

// Mode selects the score results are ordered by.
type Mode string

const (
	ModeCosine   Mode = "cosine"
	ModeCombined Mode = "combined"
)

func (m Mode) Valid() bool {
	return m == ModeCosine || m == ModeCombined
}

// Postings is one field's inverted index.
type Postings interface {
	GetPostings(term string) (index.PostingList, error)
}

// DocumentFrequencies reports how many documents contain a term.
type DocumentFrequencies interface {
	DocumentFrequency(term string) (int, bool)
}

// Corpus is everything scoring reads.
type Corpus struct {
	Title     Postings
	Body      Postings
	Terms     DocumentFrequencies
	Documents int
	PageRank  map[int]float64
}

// Weights blends the title and body cosines.
type Weights struct {
	Title float64
	Body  float64
}

var DefaultWeights = Weights{Title: 0.6, Body: 0.4}

// Match is a scored document. Score is the value ordering uses: the cosine
// in cosine mode, cosine × PageRank in combined mode.
type Match struct {
	DocID          int
	TitleCosine    float64
	BodyCosine     float64
	Cosine         float64
	PageRank       float64
	Score          float64
	TitlePositions map[string][]int
	BodyPositions  map[string][]int
}

// Weight is a term's weight in one document field: tf·idf normalised by the
// largest tf of the term in that field.
func Weight(tf, maxTF int, idf float64) float64 {
	if maxTF == 0 {
		return 0
	}
	return float64(tf) * idf / float64(maxTF)
}

// IDF is log2(N/df), or 0 for a term no document holds.
func IDF(documents, df int) float64 {
	if df <= 0 || documents <= 0 {
		return 0
	}
	return math.Log2(float64(documents) / float64(df))
}

// Cosine compares a document's weight vector with a query of queryTerms
// distinct terms, each weighted 1.
func Cosine(weights []float64, queryTerms int) float64 {
	var sum, sq float64
	for _, w := range weights {
		sum += w
		sq += w * w
	}
	if sq == 0 || queryTerms == 0 {
		return 0
	}
	return sum / (math.Sqrt(sq) * math.Sqrt(float64(queryTerms)))
}

type fieldHits struct {
	weights   map[int][]float64
	positions map[int]map[string][]int
}

func newFieldHits() *fieldHits {
	return &fieldHits{weights: make(map[int][]float64), positions: make(map[int]map[string][]int)}
}

func (fh *fieldHits) add(term string, list index.PostingList, idf float64) {
	maxTF := list.MaxFrequency()
	for _, p := range list {
		fh.weights[p.DocID] = append(fh.weights[p.DocID], Weight(p.Frequency, maxTF, idf))
		if fh.positions[p.DocID] == nil {
			fh.positions[p.DocID] = make(map[string][]int)
		}
		fh.positions[p.DocID][term] = p.Positions
	}
}

// Score ranks every document matching q. Documents whose blended cosine is 0
// or that fail a phrase are dropped. A posting read error is logged and the
// term contributes nothing to that field. The result is unordered; see Sort
// and merger.TopK.
func Score(q *parser.Query, c Corpus, w Weights, mode Mode, logger *slog.Logger) []Match {
	if q.Empty() {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	title, body := newFieldHits(), newFieldHits()
	load := func(ix Postings, field, term string) index.PostingList {
		list, err := ix.GetPostings(term)
		if err != nil {
			logger.Error("reading postings failed", "field", field, "term", term, "error", err)
			return nil
		}
		return list
	}
	for _, term := range q.Terms {
		df, ok := c.Terms.DocumentFrequency(term)
		if !ok || df == 0 {
			continue
		}
		idf := IDF(c.Documents, df)
		title.add(term, load(c.Title, "title", term), idf)
		body.add(term, load(c.Body, "body", term), idf)
	}

	candidates := make(map[int]struct{}, len(title.weights)+len(body.weights))
	for id := range title.weights {
		candidates[id] = struct{}{}
	}
	for id := range body.weights {
		candidates[id] = struct{}{}
	}

	qn := len(q.Terms)
	matches := make([]Match, 0, len(candidates))
	for id := range candidates {
		m := Match{
			DocID:          id,
			TitleCosine:    Cosine(title.weights[id], qn),
			BodyCosine:     Cosine(body.weights[id], qn),
			TitlePositions: title.positions[id],
			BodyPositions:  body.positions[id],
		}
		m.Cosine = w.Title*m.TitleCosine + w.Body*m.BodyCosine
		if m.Cosine <= 0 {
			continue
		}
		if !PassesPhrases(q.Phrases, m.TitlePositions, m.BodyPositions) {
			continue
		}
		m.PageRank = c.PageRank[id]
		m.Score = m.Cosine
		if mode == ModeCombined {
			m.Score = m.Cosine * m.PageRank
		}
		matches = append(matches, m)
	}
	return matches
}

// PassesPhrases reports whether every phrase occurs, as consecutive tokens,
// in the title or in the body. With no phrases it is always true.
func PassesPhrases(phrases []parser.Phrase, title, body map[string][]int) bool {
	for _, p := range phrases {
		if !ContainsPhrase(p, title) && !ContainsPhrase(p, body) {
			return false
		}
	}
	return true
}

// ContainsPhrase reports whether positions hold p starting at some offset.
func ContainsPhrase(p parser.Phrase, positions map[string][]int) bool {
	if len(p.Terms) == 0 {
		return true
	}
	first := positions[p.Terms[0].Term]
	for _, start := range first {
		ok := true
		for _, t := range p.Terms[1:] {
			if !hasPosition(positions[t.Term], start+t.Offset) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// hasPosition searches the ascending position list.
func hasPosition(list []int, pos int) bool {
	i := sort.SearchInts(list, pos)
	return i < len(list) && list[i] == pos
}

// Less orders by Score descending, then by DocID ascending.
func Less(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

func Sort(ms []Match) {
	sort.Slice(ms, func(i, j int) bool { return Less(ms[i], ms[j]) })
}
