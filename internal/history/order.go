package history

import (
	"container/heap"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Order selects the order commits are handed to the classifier.
type Order int

// Supported orders.
const (
	NewestFirst Order = iota // children before parents, latest committer time first
	OldestFirst              // exact reverse of NewestFirst
)

// ParseOrder maps a configuration value to an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "newest-first":
		return NewestFirst, nil
	case "oldest-first":
		return OldestFirst, nil
	default:
		return NewestFirst, fmt.Errorf("unknown history order %q (want newest-first or oldest-first)", s)
	}
}

// topoNewestFirst orders commits so that every commit precedes its parents;
// among ready commits the latest committer time wins, then the smaller hash.
func topoNewestFirst(commits map[plumbing.Hash]*object.Commit) []*object.Commit {
	children := make(map[plumbing.Hash]int, len(commits))
	for _, c := range commits {
		for _, p := range c.ParentHashes {
			if _, ok := commits[p]; ok {
				children[p]++
			}
		}
	}

	ready := &commitHeap{}
	for h, c := range commits {
		if children[h] == 0 {
			heap.Push(ready, c)
		}
	}

	out := make([]*object.Commit, 0, len(commits))
	for ready.Len() > 0 {
		c := heap.Pop(ready).(*object.Commit)
		out = append(out, c)
		for _, p := range c.ParentHashes {
			parent, ok := commits[p]
			if !ok {
				continue
			}
			children[p]--
			if children[p] == 0 {
				heap.Push(ready, parent)
			}
		}
	}
	return out
}

// commitHeap is a max-heap on committer time with hash tie-breaking.
type commitHeap []*object.Commit

func (h commitHeap) Len() int { return len(h) }
func (h commitHeap) Less(i, j int) bool {
	ti, tj := h[i].Committer.When, h[j].Committer.When
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return h[i].Hash.String() < h[j].Hash.String()
}
func (h commitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *commitHeap) Push(x any)   { *h = append(*h, x.(*object.Commit)) }
func (h *commitHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
