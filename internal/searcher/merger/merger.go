// Package merger selects the best K matches without sorting the full set.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/ranker"
)

// TopK returns at most k matches in ranker.Less order. k <= 0 selects 10.
func TopK(matches []ranker.Match, k int) []ranker.Match {
	if k <= 0 {
		k = 10
	}
	h := &matchHeap{}
	heap.Init(h)
	for _, m := range matches {
		heap.Push(h, m)
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	result := make([]ranker.Match, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.Match)
	}
	return result
}

// matchHeap is a min-heap on rank: the root is the worst kept match.
type matchHeap []ranker.Match

func (h matchHeap) Len() int { return len(h) }

func (h matchHeap) Less(i, j int) bool { return ranker.Less(h[j], h[i]) }

func (h matchHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.Match))
}

func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
