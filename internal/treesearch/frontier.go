package treesearch

import (
	"container/heap"
	"errors"

	"github.com/xkilldash9x/webagents/internal/webshop"
)

// ErrEmptyFrontier is returned by Pop when nothing is left to expand.
var ErrEmptyFrontier = errors.New("frontier is empty")

// Node is a snapshot of the search at one page: what was seen and how we got there.
type Node struct {
	Observation webshop.Observation
	History     []string
}

// LastAction is the most recent history entry, or "None".
func (n *Node) LastAction() string {
	if len(n.History) == 0 {
		return "None"
	}
	return n.History[len(n.History)-1]
}

// Extend returns a child node reached by action.
func (n *Node) Extend(obs webshop.Observation, action string) *Node {
	h := make([]string, len(n.History), len(n.History)+1)
	copy(h, n.History)
	return &Node{Observation: obs, History: append(h, action)}
}

type entry struct {
	node  *Node
	score float64
	seq   uint64
}

// entryHeap is a max-heap on score. Equal scores pop in insertion order.
type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}

// Frontier is the priority queue of nodes awaiting expansion. It does not
// deduplicate; the same page may be queued more than once.
type Frontier struct {
	h   entryHeap
	seq uint64
}

func NewFrontier() *Frontier {
	return &Frontier{}
}

func (f *Frontier) Push(score float64, n *Node) {
	f.seq++
	heap.Push(&f.h, entry{node: n, score: score, seq: f.seq})
}

// Pop removes and returns the highest-scoring node.
func (f *Frontier) Pop() (*Node, float64, error) {
	if f.h.Len() == 0 {
		return nil, 0, ErrEmptyFrontier
	}
	e := heap.Pop(&f.h).(entry)
	return e.node, e.score, nil
}

func (f *Frontier) Len() int { return f.h.Len() }
