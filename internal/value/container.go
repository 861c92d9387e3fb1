// Package value provides observable containers holding one immutable
// snapshot of application state.
package value

import (
	"fmt"
	"slices"
	"sync"

	"github.com/webstudio-is/immerhin/internal/patch"
)

// Container holds one value of type V. The value is only ever replaced
// wholesale; every replacement synchronously notifies subscribers in
// subscription order before Write returns.
//
// Reads are safe from any goroutine. Writes are expected to come from a
// single writer (the transaction layer).
type Container[V any] struct {
	mu    sync.RWMutex
	value V
	subs  []*subscription[V]
}

type subscription[V any] struct {
	fn func(V)
}

// New creates a container holding initial.
func New[V any](initial V) *Container[V] {
	return &Container[V]{value: initial}
}

// Read returns the current value.
func (c *Container[V]) Read() V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Write replaces the current value and notifies every subscriber.
func (c *Container[V]) Write(v V) {
	c.mu.Lock()
	c.value = v
	subs := slices.Clone(c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribe registers fn to be called with every new value. The returned
// function removes the subscription; calling it more than once is harmless.
func (c *Container[V]) Subscribe(fn func(V)) (unsubscribe func()) {
	s := &subscription[V]{fn: fn}
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.subs = slices.DeleteFunc(c.subs, func(x *subscription[V]) bool { return x == s })
	}
}

// Document returns the current value as a JSON document tree.
func (c *Container[V]) Document() (any, error) {
	return patch.Normalize(c.Read())
}

// SetDocument decodes doc into a fresh V and writes it.
func (c *Container[V]) SetDocument(doc any) error {
	var v V
	if err := patch.Decode(doc, &v); err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	c.Write(v)
	return nil
}
