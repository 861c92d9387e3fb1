// Package idgen provides transaction id sources.
package idgen

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Source hands out globally unique, opaque transaction ids.
type Source interface {
	NextID() string
}

// ULIDSource generates lexicographically sortable ULIDs. It is the default
// source: ids sort by creation time, which keeps journals and traces
// readable.
//
// Thread-safety: ULIDSource is safe for concurrent use.
type ULIDSource struct{}

// NextID returns a new 26 character ULID.
func (ULIDSource) NextID() string {
	return ulid.Make().String()
}

// UUIDv7Source generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Source is stateless and safe for concurrent use.
type UUIDv7Source struct{}

// NextID returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Source) NextID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceSource returns "<prefix>-1", "<prefix>-2", ... Used for
// deterministic scenarios and golden traces.
type SequenceSource struct {
	prefix string
	seq    atomic.Int64
}

// NewSequenceSource creates a sequence starting at 1.
func NewSequenceSource(prefix string) *SequenceSource {
	return &SequenceSource{prefix: prefix}
}

// NextID returns the next id in the sequence.
func (s *SequenceSource) NextID() string {
	return fmt.Sprintf("%s-%d", s.prefix, s.seq.Add(1))
}

// FixedSource returns predetermined ids for testing.
//
// Thread-safety: FixedSource is safe for concurrent use via internal mutex.
type FixedSource struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedSource creates a source that returns ids in order.
//
//	src := NewFixedSource("tx-a", "tx-b")
//	src.NextID() // "tx-a"
//	src.NextID() // "tx-b"
//	src.NextID() // panic: all ids exhausted
func NewFixedSource(ids ...string) *FixedSource {
	return &FixedSource{ids: ids}
}

// NextID returns the next predetermined id.
//
// Panics if all ids have been consumed, to catch tests that create more
// transactions than they expect.
func (s *FixedSource) NextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx >= len(s.ids) {
		panic("idgen: FixedSource: all ids exhausted")
	}
	id := s.ids[s.idx]
	s.idx++
	return id
}
