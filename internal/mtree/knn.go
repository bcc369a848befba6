package mtree

import (
	"container/heap"
	"time"

	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/features"
)

// candidate is a pending tree entry in the best-first search, ordered by
// its distance lower bound.
type candidate struct {
	e     *entry
	bound float64
}

type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return h[i].bound < h[j].bound }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// resultHeap keeps the best k neighbors as a max-heap ordered by
// (distance, id) so the worst survivor sits at the top. The secondary id
// ordering makes tie-breaking at the kth boundary deterministic.
type resultHeap []Neighbor

func (h resultHeap) Len() int { return len(h) }
func (h resultHeap) Less(i, j int) bool {
	if h[i].Distance != h[j].Distance {
		return h[i].Distance > h[j].Distance
	}
	return h[i].ID > h[j].ID
}
func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)   { *h = append(*h, x.(Neighbor)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// worse reports whether a is a worse result than b under the
// (distance, id ascending) ordering.
func worse(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.ID > b.ID
}

// KNN returns the k nearest stored vectors to q, ascending by distance
// with ties broken by song ID ascending. Fewer than k results are returned
// when the corpus is smaller than k.
func (t *Tree) KNN(q features.Vector, k int) ([]Neighbor, error) {
	if k < 1 {
		return nil, errors.Newf("k must be >= 1, got %d", k).
			Component("mtree").
			Category(errors.CategoryValidation).
			Build()
	}

	start := time.Now()
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.size == 0 {
		return nil, errors.New(errors.ErrIndexEmpty).
			Component("mtree").
			Build()
	}

	results := make(resultHeap, 0, k)
	pending := make(candidateHeap, 0, MaxEntries)

	pushNode := func(n *node, qToParent float64, haveParent bool) {
		worst, full := worstResult(results, k)
		for _, e := range n.entries {
			// triangle-inequality pre-filter from the stored parent
			// distance, no new distance computation needed
			if haveParent && full {
				if lb := abs(qToParent-e.distToParent) - e.radius; lb > worst.Distance {
					continue
				}
			}

			d := q.Distance(&e.center)
			if n.leaf {
				nb := Neighbor{ID: e.id, Distance: d}
				if !full {
					heap.Push(&results, nb)
				} else if worse(worst, nb) {
					results[0] = nb
					heap.Fix(&results, 0)
				}
				worst, full = worstResult(results, k)
			} else {
				bound := d - e.radius
				if bound < 0 {
					bound = 0
				}
				if full && bound > worst.Distance {
					continue
				}
				heap.Push(&pending, candidate{e: e, bound: bound})
			}
		}
	}

	pushNode(t.root, 0, false)
	for len(pending) > 0 {
		c := heap.Pop(&pending).(candidate)
		if worst, full := worstResult(results, k); full && c.bound > worst.Distance {
			break
		}
		qToParent := q.Distance(&c.e.center)
		pushNode(c.e.child, qToParent, true)
	}

	out := make([]Neighbor, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&results).(Neighbor)
	}

	if t.metrics != nil {
		t.metrics.KNNQueries.Inc()
		t.metrics.KNNDuration.Observe(time.Since(start).Seconds())
	}

	return out, nil
}

func worstResult(results resultHeap, k int) (Neighbor, bool) {
	if len(results) < k {
		return Neighbor{}, false
	}
	return results[0], true
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
