package votes

import (
	"container/heap"
	"sync"

	"github.com/tendermint/lattice/types"
)

type queueKey struct {
	voter types.PublicKey
	hash  types.Hash
}

type queueItem struct {
	vote  *types.Vote
	seq   uint64
	index int
}

// voteHeap is a max-heap on weight; equal weights pop in insertion order.
type voteHeap []*queueItem

func (h voteHeap) Len() int { return len(h) }

func (h voteHeap) Less(i, j int) bool {
	if c := h[i].vote.Weight.Cmp(h[j].vote.Weight); c != 0 {
		return c > 0
	}
	return h[i].seq < h[j].seq
}

func (h voteHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *voteHeap) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *voteHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Queue holds validated votes waiting for their election, at most one per
// voter and transaction, and hands out the heaviest first. It is safe for
// concurrent use.
type Queue struct {
	mtx    sync.Mutex
	max    int
	items  voteHeap
	index  map[queueKey]*queueItem
	seq    uint64
	notify chan struct{}
}

// NewQueue returns a queue holding at most max votes.
func NewQueue(max int) *Queue {
	return &Queue{
		max:    max,
		index:  make(map[queueKey]*queueItem),
		notify: make(chan struct{}, 1),
	}
}

// Add queues v. A vote replaces the queued vote of the same voter for the
// same transaction only if it is newer; otherwise v itself is returned as
// superseded. When the queue is full the lightest vote among the queued ones
// and v is shed: v itself if it weighs no more than the lightest queued
// vote, else the lightest queued vote, which makes room.
func (q *Queue) Add(v *types.Vote) (*types.Vote, types.VoteDropReason) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	key := queueKey{voter: v.PublicKey, hash: v.BlockHash}
	if item, ok := q.index[key]; ok {
		if !v.NewerThan(item.vote) {
			return v, types.Superseded
		}
		item.vote = v
		heap.Fix(&q.items, item.index)
		return nil, ""
	}

	var (
		dropped *types.Vote
		reason  types.VoteDropReason
	)
	if len(q.items) >= q.max {
		lightest := q.lightest()
		if v.Weight.Cmp(lightest.vote.Weight) <= 0 {
			return v, types.QueueFull
		}
		heap.Remove(&q.items, lightest.index)
		delete(q.index, queueKey{voter: lightest.vote.PublicKey, hash: lightest.vote.BlockHash})
		dropped, reason = lightest.vote, types.QueueFull
	}

	q.seq++
	item := &queueItem{vote: v, seq: q.seq}
	heap.Push(&q.items, item)
	q.index[key] = item

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped, reason
}

// lightest returns the lowest weight item, preferring the most recently
// added among equals. Only leaves can hold the minimum of a max-heap.
func (q *Queue) lightest() *queueItem {
	var found *queueItem
	for i := len(q.items) / 2; i < len(q.items); i++ {
		item := q.items[i]
		if found == nil {
			found = item
			continue
		}
		c := item.vote.Weight.Cmp(found.vote.Weight)
		if c < 0 || (c == 0 && item.seq > found.seq) {
			found = item
		}
	}
	return found
}

// Poll removes and returns the heaviest vote, or nil if the queue is empty.
func (q *Queue) Poll() *types.Vote {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	item := heap.Pop(&q.items).(*queueItem)
	delete(q.index, queueKey{voter: item.vote.PublicKey, hash: item.vote.BlockHash})
	return item.vote
}

// Len returns the number of queued votes.
func (q *Queue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.items)
}

// Notify returns a channel that receives after Add queued a vote.
func (q *Queue) Notify() <-chan struct{} { return q.notify }
