package index

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Posting records one term's occurrences in one document field. Positions
// are 1-based token offsets; Frequency always equals len(Positions).
type Posting struct {
	DocID     int   `json:"d"`
	Frequency int   `json:"f"`
	Positions []int `json:"p"`
}

// PostingList is kept sorted by DocID.
type PostingList []Posting

// Find returns the posting for docID, if present.
func (pl PostingList) Find(docID int) (Posting, bool) {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= docID })
	if i < len(pl) && pl[i].DocID == docID {
		return pl[i], true
	}
	return Posting{}, false
}

// upsert inserts p in DocID order, replacing an existing posting for the
// same document.
func (pl PostingList) upsert(p Posting) PostingList {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= p.DocID })
	if i < len(pl) && pl[i].DocID == p.DocID {
		pl[i] = p
		return pl
	}
	pl = append(pl, Posting{})
	copy(pl[i+1:], pl[i:])
	pl[i] = p
	return pl
}

// MaxFrequency is the largest term frequency in the list, or 0 when empty.
func (pl PostingList) MaxFrequency() int {
	max := 0
	for _, p := range pl {
		if p.Frequency > max {
			max = p.Frequency
		}
	}
	return max
}

func encodePostings(pl PostingList) ([]byte, error) {
	data, err := json.Marshal(pl)
	if err != nil {
		return nil, fmt.Errorf("marshaling postings: %w", err)
	}
	return data, nil
}

func decodePostings(data []byte) (PostingList, error) {
	var pl PostingList
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return pl, nil
}
