package idgen

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDSource(t *testing.T) {
	var src ULIDSource
	a, b := src.NextID(), src.NextID()

	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	_, err := ulid.ParseStrict(a)
	require.NoError(t, err)
}

func TestUUIDv7Source(t *testing.T) {
	var src UUIDv7Source
	id := src.NextID()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, id, src.NextID())
}

func TestSequenceSource(t *testing.T) {
	src := NewSequenceSource("tx")
	assert.Equal(t, "tx-1", src.NextID())
	assert.Equal(t, "tx-2", src.NextID())
}

func TestSequenceSource_Concurrent(t *testing.T) {
	src := NewSequenceSource("tx")
	var mu sync.Mutex
	seen := map[string]bool{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := src.NextID()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 400)
}

func TestFixedSource(t *testing.T) {
	src := NewFixedSource("a", "b")
	assert.Equal(t, "a", src.NextID())
	assert.Equal(t, "b", src.NextID())
	assert.Panics(t, func() { src.NextID() })
}

func TestSourcesImplementInterface(t *testing.T) {
	var _ Source = ULIDSource{}
	var _ Source = UUIDv7Source{}
	var _ Source = NewSequenceSource("x")
	var _ Source = NewFixedSource()
}
