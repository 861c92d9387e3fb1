package transaction

import "errors"

var (
	// ErrReentrant is returned when a notification callback calls back into
	// the Manager that is notifying it.
	ErrReentrant = errors.New("transaction: re-entrant call from notification callback")

	// ErrNotFound is returned by Revert when no applied transaction has the
	// requested id.
	ErrNotFound = errors.New("transaction: not found in history")
)
