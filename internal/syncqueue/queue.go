// Package syncqueue buffers transaction changes awaiting transmission to a
// remote peer.
package syncqueue

import (
	"slices"
	"sync"

	"github.com/webstudio-is/immerhin/internal/transaction"
)

// Entry is one pending outbound transaction.
type Entry struct {
	TransactionID string               `json:"transactionId"`
	Changes       []transaction.Change `json:"changes"`
}

// Queue holds at most one entry per transaction id, in enqueue order.
//
// Enqueueing an id that is already queued cancels the queued entry instead
// of adding a new one: the transaction was undone before it ever reached
// the network, so neither it nor its inverse needs sending.
//
// Thread-safety is provided so a transport goroutine may drain the queue
// while the store enqueues.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends an entry for id, or removes the queued entry with the
// same id. It reports whether a queued entry was cancelled.
func (q *Queue) Enqueue(id string, changes []transaction.Change) (cancelled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := slices.IndexFunc(q.entries, func(e Entry) bool { return e.TransactionID == id })
	if idx >= 0 {
		q.entries = slices.Delete(q.entries, idx, idx+1)
		return true
	}
	q.entries = append(q.entries, Entry{TransactionID: id, Changes: changes})
	return false
}

// PopAll returns every queued entry and empties the queue in one step.
// The result is never nil.
func (q *Queue) PopAll() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.entries
	q.entries = nil
	if out == nil {
		out = []Entry{}
	}
	return out
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
