// Package queue provides the deduplicating FIFO used for outward change propagation.
package queue

import (
	"sync"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// DedupQueue is a FIFO of encoded change records that refuses a record while an identical
// one is still pending. Membership is by the full encoded string, so two updates of the
// same entity with different field values are both kept.
//
// The set and the sequence always contain the same elements. It is safe for concurrent use.
type DedupQueue struct {
	mu    sync.Mutex
	set   map[string]struct{}
	items []string
}

// New creates an empty queue.
func New() *DedupQueue {
	return &DedupQueue{set: make(map[string]struct{})}
}

// Enqueue appends s unless it is already pending. It reports whether s was added.
func (q *DedupQueue) Enqueue(s string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.set[s]; ok {
		return false
	}
	q.set[s] = struct{}{}
	q.items = append(q.items, s)
	return true
}

// Dequeue removes and returns the oldest record.
func (q *DedupQueue) Dequeue() (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", domain.NewError(domain.KindEmpty, "dequeue", "queue is empty", nil)
	}
	s := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	delete(q.set, s)
	return s, nil
}

// Peek returns the oldest record without removing it.
func (q *DedupQueue) Peek() (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", domain.NewError(domain.KindEmpty, "peek", "queue is empty", nil)
	}
	return q.items[0], nil
}

// Drop removes the n oldest records, or all of them if fewer are pending.
func (q *DedupQueue) Drop(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.items) {
		n = len(q.items)
	}
	for _, s := range q.items[:n] {
		delete(q.set, s)
	}
	q.items = append([]string(nil), q.items[n:]...)
}

// IsEmpty reports whether nothing is pending.
func (q *DedupQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of pending records.
func (q *DedupQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Contains reports whether s is pending.
func (q *DedupQueue) Contains(s string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.set[s]
	return ok
}

// Snapshot returns the pending records in dequeue order.
func (q *DedupQueue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.items...)
}

// Clear empties the queue.
func (q *DedupQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.set = make(map[string]struct{})
	q.items = nil
}
