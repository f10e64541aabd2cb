/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scheduler.go
Description: Scheduler interface and the default priority scheduler that picks which corpus
entry the mutation engine derives the next candidate from.
*/

package core

import "sync"

// Scheduler picks corpus entries for mutation
type Scheduler interface {
	// Next returns the entry to mutate next, or nil if nothing is scheduled.
	Next() *CorpusEntry
	// Push makes an entry available for mutation. Pushing an entry that is
	// already scheduled must not schedule it twice.
	Push(entry *CorpusEntry)
	// Size returns the number of scheduled entries.
	Size() int
}

// PriorityScheduler hands out the highest priority entry and re-queues it one
// step lower, so fresh discoveries run first but nothing starves.
type PriorityScheduler struct {
	mu    sync.Mutex // makes the pop and re-queue in Next one step
	queue *PriorityQueue
}

// NewPriorityScheduler creates a new PriorityScheduler instance.
func NewPriorityScheduler() *PriorityScheduler {
	return &PriorityScheduler{queue: NewPriorityQueue()}
}

// Next returns the highest priority entry and re-queues it with decayed priority.
func (s *PriorityScheduler) Next() *CorpusEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, priority, ok := s.queue.Get()
	if !ok {
		return nil
	}
	if priority > 1 {
		priority--
	}
	s.queue.Put(entry, priority)
	return entry
}

// Push adds an entry at its own priority. A scheduled entry is bumped back up
// to its own priority instead of being queued again.
func (s *PriorityScheduler) Push(entry *CorpusEntry) {
	priority := entry.Priority
	if priority < 1 {
		priority = 1
	}
	s.queue.Put(entry, priority)
}

// Size returns the number of scheduled entries.
func (s *PriorityScheduler) Size() int {
	return s.queue.Size()
}
