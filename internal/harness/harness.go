package harness

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/webstudio-is/immerhin/internal/idgen"
	"github.com/webstudio-is/immerhin/internal/patch"
	"github.com/webstudio-is/immerhin/internal/store"
	"github.com/webstudio-is/immerhin/internal/syncqueue"
	"github.com/webstudio-is/immerhin/internal/transaction"
	"github.com/webstudio-is/immerhin/internal/value"
)

// DefaultRemoteSource tags remote steps that do not name a source.
const DefaultRemoteSource = "remote"

// TraceEvent is one store notification observed during a run.
type TraceEvent struct {
	Step          int                  `json:"step"`
	Action        string               `json:"action"`
	TransactionID string               `json:"transactionId"`
	Source        string               `json:"source,omitempty"`
	Changes       []transaction.Change `json:"changes"`
}

// Batch is what one sync step drained from the outbound queue.
type Batch struct {
	Step    int               `json:"step"`
	Entries []syncqueue.Entry `json:"entries"`
}

// Result captures everything a run observed.
type Result struct {
	Scenario string         `json:"scenario"`
	Trace    []TraceEvent   `json:"trace"`
	Synced   []Batch        `json:"synced"`
	Final    map[string]any `json:"final"`
	History  []string       `json:"history"`
}

// SyncedIDs returns the ids of every sent entry, in sending order.
func (r *Result) SyncedIDs() []string {
	ids := []string{}
	for _, b := range r.Synced {
		for _, e := range b.Entries {
			ids = append(ids, e.TransactionID)
		}
	}
	return ids
}

// SyncSink receives each drained batch, e.g. to append it to a journal.
type SyncSink func(step int, entries []syncqueue.Entry) error

type runConfig struct {
	sink   SyncSink
	logger *slog.Logger
}

// RunOption configures Run.
type RunOption func(*runConfig)

// WithSyncSink forwards every sync step's batch to sink.
func WithSyncSink(sink SyncSink) RunOption {
	return func(c *runConfig) {
		c.sink = sink
	}
}

// WithLogger sets the store logger. Default: discard.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Env is a store built from a scenario's containers.
type Env struct {
	Store      *store.Store
	Containers map[string]*value.Container[any]
	order      []string
}

// NewEnv builds a fresh store and registers the scenario's containers.
func NewEnv(s *Scenario, opts ...store.Option) (*Env, error) {
	base := []store.Option{store.WithIDSource(idgen.NewSequenceSource("tx"))}
	if s.MaxHistory > 0 {
		base = append(base, store.WithMaxHistory(s.MaxHistory))
	}
	if len(s.UnsyncedSources) > 0 {
		base = append(base, store.WithUnsyncedSources(s.UnsyncedSources...))
	}
	env := &Env{
		Store:      store.New(append(base, opts...)...),
		Containers: make(map[string]*value.Container[any], len(s.Containers)),
	}
	for _, def := range s.Containers {
		initial, err := patch.Normalize(def.Initial)
		if err != nil {
			return nil, fmt.Errorf("container %q: %w", def.Namespace, err)
		}
		c := value.New(initial)
		env.Store.Register(def.Namespace, c)
		env.Containers[def.Namespace] = c
		env.order = append(env.order, def.Namespace)
	}
	return env, nil
}

// Values returns every container's current value by namespace.
func (e *Env) Values() map[string]any {
	out := make(map[string]any, len(e.Containers))
	for _, ns := range e.order {
		out[ns] = e.Containers[ns].Read()
	}
	return out
}

// Run executes a scenario and returns what it observed. Errors returned
// by a step abort the run; use Check to evaluate expectations.
func Run(s *Scenario, opts ...RunOption) (*Result, error) {
	cfg := &runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(cfg)
	}

	env, err := NewEnv(s, store.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}

	result := &Result{
		Scenario: s.Name,
		Trace:    []TraceEvent{},
		Synced:   []Batch{},
	}
	var (
		stepNum int
		action  string
	)
	env.Store.Subscribe(func(id string, changes []transaction.Change, source string) {
		result.Trace = append(result.Trace, TraceEvent{
			Step:          stepNum,
			Action:        action,
			TransactionID: id,
			Source:        source,
			Changes:       changes,
		})
	})

	for i, step := range s.Steps {
		stepNum, action = i+1, step.Action
		if err := runStep(env, step, stepNum, result, cfg); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", stepNum, step.Action, err)
		}
	}

	result.Final = env.Values()
	result.History = env.Store.History()
	return result, nil
}

func runStep(env *Env, step Step, stepNum int, result *Result, cfg *runConfig) error {
	s := env.Store
	switch step.Action {
	case ActionTransaction:
		containers := make([]store.Container, len(step.Edits))
		edits := make([][]patch.Patch, len(step.Edits))
		for i, e := range step.Edits {
			containers[i] = env.Containers[e.Namespace]
			ops, err := toPatches(e.Ops)
			if err != nil {
				return fmt.Errorf("edits[%d]: %w", i, err)
			}
			edits[i] = ops
		}
		_, err := s.CreateTransaction(containers, func(drafts []*patch.Draft) error {
			for i, d := range drafts {
				next, err := patch.Apply(d.Value, edits[i])
				if err != nil {
					return fmt.Errorf("edit %q: %w", step.Edits[i].Namespace, err)
				}
				d.Value = next
			}
			return nil
		}, step.Source)
		return err

	case ActionUndo:
		return s.Undo()

	case ActionRedo:
		return s.Redo()

	case ActionRevert:
		return s.RevertTransaction(step.ID)

	case ActionRemote:
		changes, err := toChanges(step.Changes)
		if err != nil {
			return err
		}
		source := step.Source
		if source == "" {
			source = DefaultRemoteSource
		}
		if step.ID != "" {
			return s.AddTransaction(step.ID, changes, source)
		}
		return s.CreateTransactionFromChanges(changes, source)

	case ActionSync:
		entries := s.PopAll()
		result.Synced = append(result.Synced, Batch{Step: stepNum, Entries: entries})
		if cfg.sink != nil {
			return cfg.sink(stepNum, entries)
		}
		return nil
	}
	return fmt.Errorf("unknown action %q", step.Action)
}
