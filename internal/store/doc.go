// Package store ties containers, transactions, history and the outbound
// sync queue together behind one façade.
//
// A Store owns:
//   - the namespace↔container registry (namespaces are the wire-level keys)
//   - a transaction.Manager holding undo/redo history
//   - a syncqueue.Queue of changes awaiting transmission
//   - the list of change subscribers
//
// Every applied, undone, redone or reverted transaction goes through one
// notification path: it is enqueued for sync (unless its source is
// configured as unsynced) and then delivered to all subscribers in
// subscription order. While nobody is subscribed, notifications are
// buffered and handed to the next first subscriber.
//
// # Concurrency
//
// A Store is not safe for concurrent use. All calls, including the
// container writes and notifications they trigger, complete synchronously
// on the caller's goroutine. PopAll is the exception: the queue behind it
// is locked, so a transport goroutine may drain it.
package store
