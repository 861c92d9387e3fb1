// Package transaction records atomic, reversible edits spanning several
// containers and keeps the undo/redo history over them.
//
// A Transaction holds one Spec per touched container. Each Spec carries the
// forward patches moving the container to its new value and the revise
// patches restoring the previous one. The Manager applies transactions and
// keeps two strict LIFO stacks:
//
//   - current: applied transactions, eligible for undo (bounded, oldest evicted)
//   - undone: undone transactions, eligible for redo (cleared by every Add)
//
// Every Add, Undo, Redo and Revert ends with exactly one notification
// carrying the transaction id and the changes that were just applied.
//
// The Manager is single-threaded: all calls, including the notifications
// they trigger, run to completion on the caller's goroutine. A notification
// callback that calls back into the Manager receives ErrReentrant.
package transaction
