// Package handoff tracks which conversation each operator is currently
// answering. The map lives only in process memory: entries do not survive a
// restart, which is acceptable because an operator can simply re-take the
// conversation from the alert.
package handoff

import "sync"

// Tracker is a concurrency-safe operator → conversation map.
// At most one conversation per operator.
type Tracker struct {
	mu      sync.RWMutex
	replies map[int64]int64 // operator id -> conversation id
}

func NewTracker() *Tracker {
	return &Tracker{replies: make(map[int64]int64)}
}

// Assign records that the operator is answering the conversation,
// replacing any previous assignment for that operator.
func (t *Tracker) Assign(operatorID, conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[operatorID] = conversationID
}

// Lookup returns the conversation the operator is answering.
func (t *Tracker) Lookup(operatorID int64) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.replies[operatorID]
	return id, ok
}

// Clear removes the operator's assignment. No-op when absent.
func (t *Tracker) Clear(operatorID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.replies, operatorID)
}

// Len returns the number of active handoffs.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.replies)
}
