// Package textproc turns raw page and query text into normalised terms. It
// splits on non-alphanumeric boundaries, lower-cases, drops stopwords and
// stems, recording 1-based positions over the full token stream.
package textproc

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	porterstemmer "github.com/reiver/go-porterstemmer"
)

// Stemmer names accepted by New.
const (
	StemmerPorter   = "porter"
	StemmerSnowball = "snowball"
)

// extraStopWords covers markup leftovers that the English list does not.
var extraStopWords = map[string]struct{}{
	"nbsp": {}, "amp": {}, "quot": {}, "http": {}, "https": {}, "www": {},
}

// TermInfo is one term's occurrences within a single field of a document.
type TermInfo struct {
	Frequency int
	Positions []int
}

func (ti *TermInfo) add(pos int) {
	ti.Positions = append(ti.Positions, pos)
	ti.Frequency++
}

// Analyzer normalises words. It is stateless and safe for concurrent use.
type Analyzer struct {
	stem func(string) string
}

// New returns an Analyzer using the named stemmer.
func New(stemmer string) (*Analyzer, error) {
	switch stemmer {
	case "", StemmerPorter:
		return &Analyzer{stem: porterStem}, nil
	case StemmerSnowball:
		return &Analyzer{stem: func(w string) string { return english.Stem(w, false) }}, nil
	default:
		return nil, fmt.Errorf("unknown stemmer %q", stemmer)
	}
}

// porterStem skips very short words; the reference stemmer has nothing to
// strip from them. go-porterstemmer indexes out of range on a few inputs
// ("eed", "eeds", "eing"); those words are kept unstemmed.
func porterStem(word string) (stem string) {
	if len(word) < 3 {
		return word
	}
	defer func() {
		if recover() != nil {
			stem = strings.ToLower(word)
		}
	}()
	return porterstemmer.StemString(word)
}

// Tokenize splits text on anything that is not a letter or digit. Tokens keep
// their original case so they can be shown back in snippets.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// IsStopWord reports whether word (any case) carries no search value.
func IsStopWord(word string) bool {
	w := strings.ToLower(word)
	if _, ok := extraStopWords[w]; ok {
		return true
	}
	return english.IsStopWord(w)
}

// Normalize lower-cases and stems word, returning false for stopwords.
func (a *Analyzer) Normalize(word string) (string, bool) {
	w := strings.ToLower(word)
	if w == "" || IsStopWord(w) {
		return "", false
	}
	term := a.stem(w)
	if term == "" {
		return "", false
	}
	return term, true
}

// Analyze maps every term in text to its positions. Position n is the n-th
// token of the stream; stopwords consume a position without being recorded,
// so phrase adjacency is measured against the original text.
func (a *Analyzer) Analyze(text string) map[string]*TermInfo {
	terms := make(map[string]*TermInfo)
	for i, tok := range Tokenize(text) {
		term, ok := a.Normalize(tok)
		if !ok {
			continue
		}
		ti, exists := terms[term]
		if !exists {
			ti = &TermInfo{}
			terms[term] = ti
		}
		ti.add(i + 1)
	}
	return terms
}

// QueryTerms returns the distinct terms of text in first-seen order.
func (a *Analyzer) QueryTerms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(text) {
		term, ok := a.Normalize(tok)
		if !ok {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}
