/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: queue.go
Description: Priority queue of corpus entries used by the scheduler. Entries with a higher
priority come out first; ties go to the entry queued earliest. An entry is queued at most once,
queueing it again only raises its priority.
*/

package core

import (
	"container/heap"
	"sync"
)

type queueItem struct {
	entry    *CorpusEntry
	priority int
	seq      uint64
	index    int
}

type entryHeap []*queueItem

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// PriorityQueue is a thread-safe max-priority queue of corpus entries
type PriorityQueue struct {
	items  entryHeap
	queued map[string]*queueItem // by entry ID
	seq    uint64
	mu     sync.Mutex
}

// NewPriorityQueue creates an empty queue
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{queued: make(map[string]*queueItem)}
}

// Put queues entry at the given priority. An entry already queued keeps its
// place and only moves up if priority is higher than what it has.
func (pq *PriorityQueue) Put(entry *CorpusEntry, priority int) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if item, ok := pq.queued[entry.ID]; ok {
		if priority > item.priority {
			item.priority = priority
			heap.Fix(&pq.items, item.index)
		}
		return
	}
	pq.seq++
	item := &queueItem{entry: entry, priority: priority, seq: pq.seq}
	heap.Push(&pq.items, item)
	if entry.ID != "" {
		pq.queued[entry.ID] = item
	}
}

// Get removes the highest priority entry. ok is false when the queue is empty.
func (pq *PriorityQueue) Get() (entry *CorpusEntry, priority int, ok bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if len(pq.items) == 0 {
		return nil, 0, false
	}
	item := heap.Pop(&pq.items).(*queueItem)
	if pq.queued[item.entry.ID] == item {
		delete(pq.queued, item.entry.ID)
	}
	return item.entry, item.priority, true
}

// Size returns the number of queued entries
func (pq *PriorityQueue) Size() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.items)
}
