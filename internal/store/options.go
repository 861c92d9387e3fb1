package store

import (
	"log/slog"

	"github.com/webstudio-is/immerhin/internal/idgen"
	"github.com/webstudio-is/immerhin/internal/patch"
)

// Option configures a Store.
type Option func(*Store)

// WithIDSource sets where fresh transaction ids come from.
//
// Default: idgen.ULIDSource.
func WithIDSource(src idgen.Source) Option {
	return func(s *Store) {
		s.ids = src
	}
}

// WithEngine replaces the draft/patch engine.
//
// Default: patch.JSONEngine.
func WithEngine(e patch.Engine) Option {
	return func(s *Store) {
		s.engine = e
	}
}

// WithMaxHistory bounds the undo stack.
//
// Default: 100 (transaction.DefaultMaxHistory).
func WithMaxHistory(n int) Option {
	return func(s *Store) {
		s.maxHistory = n
	}
}

// WithLogger sets the logger used for debug records.
//
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithUnsyncedSources lists transaction sources whose notifications are
// not enqueued for sync. Use it for batches that arrived from the peer the
// queue is sent to, so they are not echoed back.
//
// Default: every source is synced.
func WithUnsyncedSources(sources ...string) Option {
	return func(s *Store) {
		for _, src := range sources {
			s.unsynced[src] = struct{}{}
		}
	}
}
