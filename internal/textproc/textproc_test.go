package textproc

import (
	"reflect"
	"testing"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := New(StemmerPorter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Hong Kong's  university, (HKUST) 2024!")
	want := []string{"Hong", "Kong", "s", "university", "HKUST", "2024"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %q, want %q", got, want)
	}
}

func TestStopWords(t *testing.T) {
	for _, w := range []string{"the", "The", "and", "of", "nbsp"} {
		if !IsStopWord(w) {
			t.Errorf("IsStopWord(%q) = false", w)
		}
	}
	for _, w := range []string{"search", "engine", "kong"} {
		if IsStopWord(w) {
			t.Errorf("IsStopWord(%q) = true", w)
		}
	}
}

func TestAnalyzePositions(t *testing.T) {
	a := newAnalyzer(t)
	terms := a.Analyze("The search engine searches the web")

	search, ok := terms["search"]
	if !ok {
		t.Fatalf("missing stem 'search' in %v", terms)
	}
	// "search" (pos 2) and "searches" (pos 4) share a stem.
	if !reflect.DeepEqual(search.Positions, []int{2, 4}) {
		t.Errorf("positions = %v, want [2 4]", search.Positions)
	}
	for term, ti := range terms {
		if ti.Frequency != len(ti.Positions) {
			t.Errorf("%s: frequency %d != len(positions) %d", term, ti.Frequency, len(ti.Positions))
		}
	}
	if _, ok := terms["the"]; ok {
		t.Error("stopword indexed")
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	a := newAnalyzer(t)
	if got := a.Analyze(""); len(got) != 0 {
		t.Errorf("Analyze(\"\") = %v", got)
	}
	if got := a.Analyze("the of and"); len(got) != 0 {
		t.Errorf("stopword-only text produced %v", got)
	}
}

func TestQueryTermsDistinct(t *testing.T) {
	a := newAnalyzer(t)
	got := a.QueryTerms("Searching search the SEARCH engines")
	want := []string{"search", "engin"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("QueryTerms = %q, want %q", got, want)
	}
}

func TestSnowballStemmer(t *testing.T) {
	a, err := New(StemmerSnowball)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if term, ok := a.Normalize("Running"); !ok || term != "run" {
		t.Errorf("Normalize(Running) = %q, %v", term, ok)
	}
	if _, err := New("lancaster"); err == nil {
		t.Error("expected error for unknown stemmer")
	}
}

func TestPorterStemmerTolerantInputs(t *testing.T) {
	a := newAnalyzer(t)
	for _, w := range []string{"eed", "eeds", "eing", "EED"} {
		term, ok := a.Normalize(w)
		if !ok || term == "" {
			t.Errorf("Normalize(%q) = %q, %v", w, term, ok)
		}
	}
	terms := a.Analyze("we eed more seeds")
	if _, ok := terms["eed"]; !ok {
		t.Errorf("Analyze lost the word eed: %v", terms)
	}
	if got := a.QueryTerms("eing eeds"); len(got) != 2 {
		t.Errorf("QueryTerms = %v, want two terms", got)
	}
}

func BenchmarkAnalyze(b *testing.B) {
	a, _ := New(StemmerPorter)
	text := "Distributed web search engines crawl pages, build inverted indexes and rank documents by link authority. "
	for i := 0; i < 4; i++ {
		text += text
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.Analyze(text)
	}
}
