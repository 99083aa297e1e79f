package ranking

import "container/heap"

// topK keeps the k best passages: higher score first, then lower id.
func topK(items []*ScoredPassage, k int) []ScoredPassage {
	h := &scoredHeap{}
	for _, it := range items {
		if h.Len() < k {
			heap.Push(h, it)
			continue
		}
		if worse((*h)[0], it) {
			(*h)[0] = it
			heap.Fix(h, 0)
		}
	}
	out := make([]ScoredPassage, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = *heap.Pop(h).(*ScoredPassage)
	}
	return out
}

// worse reports whether a ranks below b.
func worse(a, b *ScoredPassage) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Passage.ID > b.Passage.ID
}

// scoredHeap is a min-heap with the worst passage at the root.
type scoredHeap []*ScoredPassage

func (h scoredHeap) Len() int           { return len(h) }
func (h scoredHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoredHeap) Push(x any) {
	*h = append(*h, x.(*ScoredPassage))
}

func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
