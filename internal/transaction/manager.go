package transaction

import (
	"fmt"
	"slices"
)

// DefaultMaxHistory bounds the undo stack.
const DefaultMaxHistory = 100

// Callback receives one notification per applied, undone, redone or
// reverted transaction. source is empty for locally originated undo, redo
// and revert.
type Callback func(transactionID string, changes []Change, source string)

// Manager owns the undo and redo stacks.
type Manager struct {
	max     int
	current []*Transaction // oldest first
	undone  []*Transaction // oldest first
	notify  Callback
	busy    bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxHistory sets how many applied transactions stay undoable.
// Values below 1 are ignored.
func WithMaxHistory(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.max = n
		}
	}
}

// NewManager creates a Manager with empty history. notify may be nil.
func NewManager(notify Callback, opts ...ManagerOption) *Manager {
	m := &Manager{
		max:    DefaultMaxHistory,
		notify: notify,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add applies tx, pushes it onto the undo stack and drops all redo
// history. Empty transactions are ignored without notification.
//
// When the undo stack grows past its bound the oldest entry is evicted
// and can no longer be undone.
func (m *Manager) Add(tx *Transaction, source string) error {
	if tx == nil || tx.Len() == 0 {
		return nil
	}
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	if err := tx.ApplyPatches(); err != nil {
		return fmt.Errorf("apply transaction %s: %w", tx.ID(), err)
	}
	m.current = append(m.current, tx)
	if over := len(m.current) - m.max; over > 0 {
		m.current = slices.Delete(m.current, 0, over)
	}
	// A new change drops the redo branch.
	clear(m.undone)
	m.undone = m.undone[:0]

	m.emit(tx.ID(), tx.Changes(), source)
	return nil
}

// Undo reverts the newest applied transaction. It is a no-op when there is
// nothing to undo.
func (m *Manager) Undo() error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	if len(m.current) == 0 {
		return nil
	}

	tx := m.current[len(m.current)-1]
	if err := tx.ApplyRevisePatches(); err != nil {
		return fmt.Errorf("undo transaction %s: %w", tx.ID(), err)
	}
	m.current[len(m.current)-1] = nil
	m.current = m.current[:len(m.current)-1]
	m.undone = append(m.undone, tx)

	m.emit(tx.ID(), tx.ReviseChanges(), "")
	return nil
}

// Redo re-applies the most recently undone transaction. It is a no-op when
// there is nothing to redo. The bound on the undo stack is enforced on the
// next Add, not here.
func (m *Manager) Redo() error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	if len(m.undone) == 0 {
		return nil
	}

	tx := m.undone[len(m.undone)-1]
	if err := tx.ApplyPatches(); err != nil {
		return fmt.Errorf("redo transaction %s: %w", tx.ID(), err)
	}
	m.undone[len(m.undone)-1] = nil
	m.undone = m.undone[:len(m.undone)-1]
	m.current = append(m.current, tx)

	m.emit(tx.ID(), tx.Changes(), "")
	return nil
}

// Revert applies the inverse of the applied transaction with the given id
// and removes it from the undo stack, leaving the order of the other
// entries untouched. The reverted transaction is not redoable.
func (m *Manager) Revert(id string) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	idx := slices.IndexFunc(m.current, func(tx *Transaction) bool { return tx.ID() == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	tx := m.current[idx]
	if err := tx.ApplyRevisePatches(); err != nil {
		return fmt.Errorf("revert transaction %s: %w", id, err)
	}
	m.current = slices.Delete(m.current, idx, idx+1)

	m.emit(tx.ID(), tx.ReviseChanges(), "")
	return nil
}

// CanUndo reports whether Undo would do anything.
func (m *Manager) CanUndo() bool {
	return len(m.current) > 0
}

// CanRedo reports whether Redo would do anything.
func (m *Manager) CanRedo() bool {
	return len(m.undone) > 0
}

// History returns the ids of the undoable transactions, oldest first.
func (m *Manager) History() []string {
	return ids(m.current)
}

// Undone returns the ids of the redoable transactions, oldest first.
func (m *Manager) Undone() []string {
	return ids(m.undone)
}

func ids(txs []*Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID()
	}
	return out
}

func (m *Manager) enter() error {
	if m.busy {
		return ErrReentrant
	}
	m.busy = true
	return nil
}

func (m *Manager) leave() {
	m.busy = false
}

func (m *Manager) emit(id string, changes []Change, source string) {
	if m.notify != nil {
		m.notify(id, changes, source)
	}
}
