package ranker

import (
	"errors"
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/parser"
)

type fakeIndex map[string]index.PostingList

func (f fakeIndex) GetPostings(term string) (index.PostingList, error) {
	if term == "broken" {
		return nil, errors.New("disk on fire")
	}
	return f[term], nil
}

type fakeDF map[string]int

func (f fakeDF) DocumentFrequency(term string) (int, bool) {
	df, ok := f[term]
	return df, ok
}

func posting(doc int, positions ...int) index.Posting {
	return index.Posting{DocID: doc, Frequency: len(positions), Positions: positions}
}

func query(terms []string, phrases ...parser.Phrase) *parser.Query {
	return &parser.Query{Terms: terms, Phrases: phrases}
}

func phrase(terms ...string) parser.Phrase {
	p := parser.Phrase{}
	for i, t := range terms {
		p.Terms = append(p.Terms, parser.PhraseTerm{Term: t, Offset: i})
	}
	return p
}

func TestIDFAndWeight(t *testing.T) {
	if got := IDF(8, 2); got != 2 {
		t.Errorf("IDF(8,2) = %v, want 2", got)
	}
	if IDF(8, 0) != 0 {
		t.Error("IDF with df 0 should be 0")
	}
	if got := Weight(2, 4, 2); got != 1 {
		t.Errorf("Weight = %v, want 1", got)
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float64{1, 1}, 2); math.Abs(got-1) > 1e-12 {
		t.Errorf("identical direction cosine = %v, want 1", got)
	}
	if got := Cosine([]float64{1}, 4); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("one of four terms = %v, want 0.5", got)
	}
	if Cosine(nil, 3) != 0 || Cosine([]float64{0, 0}, 2) != 0 {
		t.Error("zero vector must score 0")
	}
}

func TestCosineMonotonicity(t *testing.T) {
	idf := IDF(10, 3)
	for k := 2; k <= 6; k++ {
		if Weight(k, 6, idf) < Weight(k-1, 6, idf) {
			t.Errorf("weight for tf=%d below tf=%d", k, k-1)
		}
	}
}

func TestPhraseFilter(t *testing.T) {
	positions := map[string][]int{"hong": {3}, "kong": {4}}
	if !ContainsPhrase(phrase("hong", "kong"), positions) {
		t.Error(`"hong kong" should match`)
	}
	if ContainsPhrase(phrase("kong", "hong"), positions) {
		t.Error(`"kong hong" should not match`)
	}
	gap := parser.Phrase{Terms: []parser.PhraseTerm{{Term: "univers", Offset: 0}, {Term: "scienc", Offset: 2}}}
	if !ContainsPhrase(gap, map[string][]int{"univers": {5, 10}, "scienc": {12}}) {
		t.Error("phrase with stopword gap should match at 10/12")
	}
	if !PassesPhrases(nil, nil, nil) {
		t.Error("no phrases must always pass")
	}
	// title fails, body passes
	if !PassesPhrases([]parser.Phrase{phrase("hong", "kong")}, map[string][]int{"hong": {1}}, positions) {
		t.Error("phrase in body only should pass")
	}
}

func corpus() Corpus {
	return Corpus{
		Title: fakeIndex{
			"test": {posting(2, 1)},
		},
		Body: fakeIndex{
			"test": {posting(2, 3), posting(3, 1, 5)},
			"hong": {posting(3, 7), posting(4, 2)},
			"kong": {posting(3, 8), posting(4, 1)},
		},
		Terms:     fakeDF{"test": 2, "hong": 2, "kong": 2, "broken": 1},
		Documents: 4,
		PageRank:  map[int]float64{2: 0.1, 3: 0.4},
	}
}

func TestScoreCosine(t *testing.T) {
	ms := Score(query([]string{"test"}), corpus(), DefaultWeights, ModeCosine, nil)
	Sort(ms)
	if len(ms) != 2 {
		t.Fatalf("matches = %d, want 2", len(ms))
	}
	// doc 2 has the term in title and body: 0.6*1 + 0.4*1
	if ms[0].DocID != 2 || math.Abs(ms[0].Cosine-1.0) > 1e-12 {
		t.Errorf("first = %+v", ms[0])
	}
	if ms[1].DocID != 3 || math.Abs(ms[1].Cosine-0.4) > 1e-12 {
		t.Errorf("second = %+v", ms[1])
	}
	if got := ms[1].BodyPositions["test"]; len(got) != 2 {
		t.Errorf("body positions = %v", got)
	}
}

func TestScoreCombined(t *testing.T) {
	ms := Score(query([]string{"test"}), corpus(), DefaultWeights, ModeCombined, nil)
	Sort(ms)
	// doc 2: 1.0*0.1 = 0.1; doc 3: 0.4*0.4 = 0.16
	if ms[0].DocID != 3 || ms[1].DocID != 2 {
		t.Fatalf("order = %d,%d, want 3,2", ms[0].DocID, ms[1].DocID)
	}
	if math.Abs(ms[0].Score-0.16) > 1e-12 || ms[0].PageRank != 0.4 {
		t.Errorf("combined = %+v", ms[0])
	}
}

func TestScorePhraseFilter(t *testing.T) {
	ms := Score(query([]string{"hong", "kong"}, phrase("hong", "kong")), corpus(), DefaultWeights, ModeCosine, nil)
	if len(ms) != 1 || ms[0].DocID != 3 {
		t.Fatalf("matches = %+v, want only doc 3", ms)
	}
}

func TestScoreEdgeCases(t *testing.T) {
	c := corpus()
	if ms := Score(query(nil), c, DefaultWeights, ModeCosine, nil); len(ms) != 0 {
		t.Errorf("empty query matched %d", len(ms))
	}
	if ms := Score(query([]string{"unknown"}), c, DefaultWeights, ModeCosine, nil); len(ms) != 0 {
		t.Errorf("unknown term matched %d", len(ms))
	}
	// broken term contributes nothing but does not abort the query
	ms := Score(query([]string{"broken", "test"}), c, DefaultWeights, ModeCosine, nil)
	if len(ms) != 2 {
		t.Errorf("matches with a broken term = %d, want 2", len(ms))
	}
}

func TestScoreDropsZeroIDF(t *testing.T) {
	c := corpus()
	c.Documents = 2 // df == N for "test"
	if ms := Score(query([]string{"test"}), c, DefaultWeights, ModeCosine, nil); len(ms) != 0 {
		t.Errorf("term in every document should score 0, got %+v", ms)
	}
}

func TestLessTieBreak(t *testing.T) {
	ms := []Match{{DocID: 5, Score: 1}, {DocID: 2, Score: 1}, {DocID: 9, Score: 2}}
	Sort(ms)
	if ms[0].DocID != 9 || ms[1].DocID != 2 || ms[2].DocID != 5 {
		t.Errorf("order = %v", ms)
	}
}
