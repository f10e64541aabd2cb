/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: feedback.go
Description: Default coverage feedback. A run is interesting when its coverage map has not
been seen before in this campaign.
*/

package core

import "sync"

// CoverageFeedback keeps inputs that produce a previously unseen coverage map
type CoverageFeedback struct {
	seen map[string]struct{}
	mu   sync.Mutex
}

// NewCoverageFeedback creates an empty feedback tracker
func NewCoverageFeedback() *CoverageFeedback {
	return &CoverageFeedback{seen: make(map[string]struct{})}
}

// IsInteresting reports whether cov is new. Runs without coverage are never interesting.
func (f *CoverageFeedback) IsInteresting(entry *CorpusEntry, cov *Coverage) bool {
	if cov == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[cov.Hash]; ok {
		return false
	}
	f.seen[cov.Hash] = struct{}{}
	return true
}

// Unique returns the number of distinct coverage maps observed
func (f *CoverageFeedback) Unique() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
