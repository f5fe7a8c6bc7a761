// Package pagerank computes link authority over a dense link matrix with
// synchronous power iteration.
package pagerank

// PageRank holds the rank vector for documents 1..N.
type PageRank struct {
	matrix    [][]uint8
	outDegree []int
	ranks     []float64
}

// New starts every document at 1/N.
func New(matrix [][]uint8) *PageRank {
	n := len(matrix)
	pr := &PageRank{
		matrix:    matrix,
		outDegree: make([]int, n),
		ranks:     make([]float64, n),
	}
	for j, row := range matrix {
		for _, v := range row {
			if v == 1 {
				pr.outDegree[j]++
			}
		}
	}
	for i := range pr.ranks {
		pr.ranks[i] = 1 / float64(n)
	}
	return pr
}

// Compute runs iterations passes of
//
//	rank[i] = (1-d)/N + d * Σ_j prev[j]/outDegree(j)   over j linking to i
//
// and rescales the vector to sum to 1 after each pass. Dangling documents
// pass no rank on; their mass is not redistributed.
func (pr *PageRank) Compute(iterations int, d float64) {
	n := len(pr.ranks)
	if n == 0 {
		return
	}
	base := (1 - d) / float64(n)
	next := make([]float64, n)
	for it := 0; it < iterations; it++ {
		for i := range next {
			next[i] = base
		}
		for j, row := range pr.matrix {
			if pr.outDegree[j] == 0 {
				continue
			}
			share := d * pr.ranks[j] / float64(pr.outDegree[j])
			for i, v := range row {
				if v == 1 {
					next[i] += share
				}
			}
		}
		var sum float64
		for _, r := range next {
			sum += r
		}
		if sum > 0 {
			for i := range next {
				next[i] /= sum
			}
		}
		pr.ranks, next = next, pr.ranks
	}
}

// Score returns the rank of document id, or 0 for an unknown id.
func (pr *PageRank) Score(id int) float64 {
	if id < 1 || id > len(pr.ranks) {
		return 0
	}
	return pr.ranks[id-1]
}

// Scores returns document ID → rank.
func (pr *PageRank) Scores() map[int]float64 {
	out := make(map[int]float64, len(pr.ranks))
	for i, r := range pr.ranks {
		out[i+1] = r
	}
	return out
}

func (pr *PageRank) Sum() float64 {
	var s float64
	for _, r := range pr.ranks {
		s += r
	}
	return s
}
