package transaction

import (
	"errors"
	"fmt"
	"slices"

	"github.com/webstudio-is/immerhin/internal/patch"
)

// Target is the container side of a Spec: something holding a document
// that can be read and replaced wholesale.
type Target interface {
	Document() (any, error)
	SetDocument(doc any) error
}

// Change is the transmissible part of one container's contribution to a
// transaction. Patches move the container forward, RevisePatches is their
// exact inverse.
type Change struct {
	Namespace     string        `json:"namespace"`
	Patches       []patch.Patch `json:"patches"`
	RevisePatches []patch.Patch `json:"revisePatches"`
}

// Spec is a Change bound to the local container it targets. The target is
// never serialized.
type Spec struct {
	Change
	Target Target
}

// Transaction is an ordered, atomic group of per-container changes.
type Transaction struct {
	id    string
	specs []Spec
}

// New creates an empty transaction with the given id.
func New(id string) *Transaction {
	return &Transaction{id: id}
}

// ID returns the transaction id. It never changes.
func (t *Transaction) ID() string {
	return t.id
}

// Len returns the number of specs.
func (t *Transaction) Len() int {
	return len(t.specs)
}

// Specs returns a copy of the specs in insertion order.
func (t *Transaction) Specs() []Spec {
	return slices.Clone(t.specs)
}

// Add appends spec unless its forward patch list is empty. It reports
// whether the spec was kept.
func (t *Transaction) Add(spec Spec) bool {
	if len(spec.Patches) == 0 {
		return false
	}
	t.specs = append(t.specs, spec)
	return true
}

// ApplyPatches replays every spec's forward patches against its target's
// current value. If any spec fails, the specs already applied are reverted
// and the error is returned.
func (t *Transaction) ApplyPatches() error {
	for i, spec := range t.specs {
		if err := applyTo(spec.Target, spec.Patches); err != nil {
			err = fmt.Errorf("namespace %q: %w", spec.Namespace, err)
			return errors.Join(err, t.rollback(t.specs[:i], false))
		}
	}
	return nil
}

// ApplyRevisePatches restores the pre-transaction value of every target.
// Specs are reverted in reverse order; on failure the specs already
// reverted are re-applied.
func (t *Transaction) ApplyRevisePatches() error {
	for i := len(t.specs) - 1; i >= 0; i-- {
		spec := t.specs[i]
		if err := applyTo(spec.Target, spec.RevisePatches); err != nil {
			err = fmt.Errorf("namespace %q: %w", spec.Namespace, err)
			return errors.Join(err, t.rollback(t.specs[i+1:], true))
		}
	}
	return nil
}

// rollback undoes a partial apply of done. With reapply set the specs were
// being reverted and get their forward patches again; otherwise they are
// reverted, newest first.
func (t *Transaction) rollback(done []Spec, reapply bool) error {
	var errs []error
	if reapply {
		for _, spec := range done {
			errs = append(errs, applyTo(spec.Target, spec.Patches))
		}
	} else {
		for i := len(done) - 1; i >= 0; i-- {
			errs = append(errs, applyTo(done[i].Target, done[i].RevisePatches))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func applyTo(target Target, patches []patch.Patch) error {
	doc, err := target.Document()
	if err != nil {
		return err
	}
	next, err := patch.Apply(doc, patches)
	if err != nil {
		return err
	}
	return target.SetDocument(next)
}

// Changes projects the specs into wire-shaped changes.
func (t *Transaction) Changes() []Change {
	out := make([]Change, len(t.specs))
	for i, spec := range t.specs {
		out[i] = spec.Change
	}
	return out
}

// ReviseChanges is Changes with Patches and RevisePatches swapped, so an
// undo can be consumed exactly like a forward change.
func (t *Transaction) ReviseChanges() []Change {
	out := make([]Change, len(t.specs))
	for i, spec := range t.specs {
		out[i] = Change{
			Namespace:     spec.Namespace,
			Patches:       spec.RevisePatches,
			RevisePatches: spec.Patches,
		}
	}
	return out
}
