package store

import (
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/webstudio-is/immerhin/internal/idgen"
	"github.com/webstudio-is/immerhin/internal/patch"
	"github.com/webstudio-is/immerhin/internal/syncqueue"
	"github.com/webstudio-is/immerhin/internal/transaction"
)

// Container is anything the Store can read and replace as a document.
// *value.Container[V] implements it for every V.
type Container = transaction.Target

// Callback receives every applied, undone, redone or reverted transaction.
type Callback = transaction.Callback

// Recipe edits the drafts of the containers passed to CreateTransaction,
// in the same order. Returning an error aborts the transaction.
type Recipe func(drafts []*patch.Draft) error

// Notification is one delivered (or buffered) change notification.
type Notification struct {
	TransactionID string
	Changes       []transaction.Change
	Source        string
}

type subscriber struct {
	fn Callback
}

// Store is the entry point for transactions. Create one with New; the
// registry and history live as long as the Store does.
type Store struct {
	namespaces map[Container][]string // registration order, latest last
	containers map[string]Container

	manager *transaction.Manager
	queue   *syncqueue.Queue
	engine  patch.Engine
	ids     idgen.Source
	logger  *slog.Logger

	maxHistory int
	unsynced   map[string]struct{}

	subscribers []*subscriber
	pending     []Notification
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		namespaces: make(map[Container][]string),
		containers: make(map[string]Container),
		queue:      syncqueue.New(),
		engine:     patch.JSONEngine{},
		ids:        idgen.ULIDSource{},
		logger:     slog.Default(),
		maxHistory: transaction.DefaultMaxHistory,
		unsynced:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.manager = transaction.NewManager(s.dispatch, transaction.WithMaxHistory(s.maxHistory))
	return s
}

// Register maps namespace to container in both directions. Registering a
// namespace again moves it to the new container; registering a container
// under a second namespace adds a mapping, and local lookups of the
// container then resolve to the latest namespace it still holds.
//
// Namespaces are NFC-normalised so visually identical keys from different
// peers match.
func (s *Store) Register(namespace string, c Container) {
	namespace = norm.NFC.String(namespace)
	if prev, ok := s.containers[namespace]; ok {
		s.unmap(prev, namespace)
	}
	s.containers[namespace] = c
	s.namespaces[c] = append(s.namespaces[c], namespace)
}

func (s *Store) unmap(c Container, namespace string) {
	rest := slices.DeleteFunc(s.namespaces[c], func(ns string) bool { return ns == namespace })
	if len(rest) == 0 {
		delete(s.namespaces, c)
		return
	}
	s.namespaces[c] = rest
}

// Namespace returns the namespace c is registered under. A container
// registered under several namespaces reports the latest one.
func (s *Store) Namespace(c Container) (string, bool) {
	all := s.namespaces[c]
	if len(all) == 0 {
		return "", false
	}
	return all[len(all)-1], true
}

// Container returns the container registered under namespace.
func (s *Store) Container(namespace string) (Container, bool) {
	c, ok := s.containers[norm.NFC.String(namespace)]
	return c, ok
}

// CreateTransaction runs recipe over drafts of containers and commits the
// result as one transaction tagged with source. It returns the new value
// of every container, in input order.
//
// Every container must be registered; otherwise a ConfigurationError is
// returned and nothing changes. Containers the recipe did not change are
// left out of the transaction, and a transaction without changes is
// discarded without notification.
func (s *Store) CreateTransaction(containers []Container, recipe Recipe, source string) ([]any, error) {
	namespaces := make([]string, len(containers))
	for i, c := range containers {
		ns, ok := s.Namespace(c)
		if !ok {
			return nil, newUnregisteredError(i)
		}
		namespaces[i] = ns
	}

	drafts := make([]*patch.Draft, len(containers))
	for i, c := range containers {
		doc, err := c.Document()
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", namespaces[i], err)
		}
		drafts[i] = s.engine.BeginDraft(doc)
	}
	if err := recipe(drafts); err != nil {
		return nil, fmt.Errorf("recipe: %w", err)
	}

	tx := transaction.New(s.ids.NextID())
	values := make([]any, len(containers))
	for i, d := range drafts {
		v, err := s.engine.Finalize(d, func(forward, reverse []patch.Patch) {
			tx.Add(transaction.Spec{
				Change: transaction.Change{
					Namespace:     namespaces[i],
					Patches:       forward,
					RevisePatches: reverse,
				},
				Target: containers[i],
			})
		})
		if err != nil {
			return nil, fmt.Errorf("finalize %q: %w", namespaces[i], err)
		}
		values[i] = v
	}

	if tx.Len() == 0 {
		s.logger.Debug("discarding empty transaction", "transaction_id", tx.ID())
		return values, nil
	}
	if err := s.manager.Add(tx, source); err != nil {
		return nil, err
	}
	return values, nil
}

// CreateTransactionFromChanges replays a batch of changes, typically
// received from a remote peer, as a new transaction with a fresh id.
// Changes for namespaces not registered here are skipped.
func (s *Store) CreateTransactionFromChanges(changes []transaction.Change, source string) error {
	return s.addChanges(s.ids.NextID(), changes, source)
}

// AddTransaction is CreateTransactionFromChanges keeping the given id, for
// transactions whose id is shared across replicas.
func (s *Store) AddTransaction(id string, changes []transaction.Change, source string) error {
	return s.addChanges(id, changes, source)
}

func (s *Store) addChanges(id string, changes []transaction.Change, source string) error {
	tx := transaction.New(id)
	for _, ch := range changes {
		ns := norm.NFC.String(ch.Namespace)
		c, ok := s.containers[ns]
		if !ok {
			s.logger.Debug("skipping change for unknown namespace",
				"transaction_id", id, "namespace", ch.Namespace)
			continue
		}
		ch.Namespace = ns
		tx.Add(transaction.Spec{Change: ch, Target: c})
	}
	return s.manager.Add(tx, source)
}

// RevertTransaction applies the inverse of the applied transaction with the
// given id and drops it from history. Other history entries keep their
// order. Unknown ids yield an error wrapping transaction.ErrNotFound.
func (s *Store) RevertTransaction(id string) error {
	return s.manager.Revert(id)
}

// Undo reverts the newest transaction. No-op when there is none.
func (s *Store) Undo() error {
	return s.manager.Undo()
}

// Redo re-applies the newest undone transaction. No-op when there is none.
func (s *Store) Redo() error {
	return s.manager.Redo()
}

// CanUndo reports whether Undo would do anything.
func (s *Store) CanUndo() bool {
	return s.manager.CanUndo()
}

// CanRedo reports whether Redo would do anything.
func (s *Store) CanRedo() bool {
	return s.manager.CanRedo()
}

// History returns the ids of undoable transactions, oldest first.
func (s *Store) History() []string {
	return s.manager.History()
}

// PopAll drains the outbound sync queue.
func (s *Store) PopAll() []syncqueue.Entry {
	return s.queue.PopAll()
}

// Subscribe registers cb for change notifications and returns a function
// that removes it.
//
// When cb becomes the only subscriber, notifications buffered while nobody
// was subscribed are delivered to it first, in their original order. Each
// buffered notification is delivered exactly once.
func (s *Store) Subscribe(cb Callback) (unsubscribe func()) {
	sub := &subscriber{fn: cb}
	s.subscribers = append(s.subscribers, sub)

	if len(s.subscribers) == 1 && len(s.pending) > 0 {
		pending := s.pending
		s.pending = nil
		for _, n := range pending {
			cb(n.TransactionID, n.Changes, n.Source)
		}
	}

	return func() {
		s.subscribers = slices.DeleteFunc(s.subscribers, func(x *subscriber) bool { return x == sub })
	}
}

func (s *Store) dispatch(id string, changes []transaction.Change, source string) {
	if _, skip := s.unsynced[source]; !skip {
		if cancelled := s.queue.Enqueue(id, changes); cancelled {
			s.logger.Debug("cancelled unsent transaction", "transaction_id", id)
		}
	}

	if len(s.subscribers) == 0 {
		s.pending = append(s.pending, Notification{TransactionID: id, Changes: changes, Source: source})
		return
	}
	for _, sub := range slices.Clone(s.subscribers) {
		sub.fn(id, changes, source)
	}
}
