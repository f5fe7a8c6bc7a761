// Package index implements a positional inverted index persisted in a kvlog
// store: one key per term, holding that term's posting list.
package index

import (
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer/kvlog"
)

// InvertedIndex maps terms to posting lists. The title and body fields each
// get their own instance.
type InvertedIndex struct {
	name string
	kv   *kvlog.Store
	// serialises read-modify-write of a term's list
	mu sync.Mutex
}

func New(name string, kv *kvlog.Store) *InvertedIndex {
	return &InvertedIndex{name: name, kv: kv}
}

// Open opens the kvlog at path and wraps it.
func Open(name, path string, opts kvlog.Options) (*InvertedIndex, error) {
	kv, err := kvlog.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("opening %s index: %w", name, err)
	}
	return New(name, kv), nil
}

func (ix *InvertedIndex) Name() string {
	return ix.name
}

// AddEntry records positions of term in docID, creating the term's list if
// needed and replacing any earlier posting for the same document. The change
// is committed to the log before returning.
func (ix *InvertedIndex) AddEntry(term string, docID int, positions []int) error {
	if term == "" {
		return fmt.Errorf("%s index: empty term", ix.name)
	}
	if len(positions) == 0 {
		return fmt.Errorf("%s index: term %q has no positions for doc %d", ix.name, term, docID)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	list, err := ix.load(term)
	if err != nil {
		return err
	}
	list = list.upsert(Posting{
		DocID:     docID,
		Frequency: len(positions),
		Positions: append([]int(nil), positions...),
	})
	data, err := encodePostings(list)
	if err != nil {
		return err
	}
	if err := ix.kv.Put(term, data); err != nil {
		return fmt.Errorf("%s index: writing %q: %w", ix.name, term, err)
	}
	return nil
}

// Delete removes the whole posting list of term.
func (ix *InvertedIndex) Delete(term string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.kv.Delete(term); err != nil {
		return fmt.Errorf("%s index: deleting %q: %w", ix.name, term, err)
	}
	return nil
}

// GetPostings returns term's postings sorted by document, or an empty list.
func (ix *InvertedIndex) GetPostings(term string) (PostingList, error) {
	return ix.load(term)
}

func (ix *InvertedIndex) load(term string) (PostingList, error) {
	data, ok := ix.kv.Get(term)
	if !ok {
		return PostingList{}, nil
	}
	list, err := decodePostings(data)
	if err != nil {
		return nil, fmt.Errorf("%s index: term %q: %w", ix.name, term, err)
	}
	return list, nil
}

// Terms lists every indexed term in sorted order.
func (ix *InvertedIndex) Terms() []string {
	return ix.kv.Keys()
}

func (ix *InvertedIndex) Len() int {
	return ix.kv.Len()
}

func (ix *InvertedIndex) Clear() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.kv.Clear()
}

func (ix *InvertedIndex) Compact() error {
	return ix.kv.Compact()
}

func (ix *InvertedIndex) Close() error {
	return ix.kv.Close()
}
