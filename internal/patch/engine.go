package patch

// Draft is a mutable working copy of a document. Recipes edit Value freely,
// either in place or by assigning a new tree.
type Draft struct {
	base  any
	Value any
}

// Base returns the document the draft was started from.
func (d *Draft) Base() any {
	return d.base
}

// Engine produces drafts and turns finished drafts into patches.
type Engine interface {
	// BeginDraft returns a draft seeded with base. base is not modified by
	// later edits of the draft.
	BeginDraft(base any) *Draft

	// Finalize resolves the draft into its new value and reports the
	// forward and reverse patches through onPatches (which may be nil).
	// Unchanged drafts report empty lists and return the base unchanged.
	Finalize(d *Draft, onPatches func(forward, reverse []Patch)) (any, error)
}

// JSONEngine is the default Engine, working on JSON document trees.
type JSONEngine struct{}

var _ Engine = JSONEngine{}

// BeginDraft implements Engine.
func (JSONEngine) BeginDraft(base any) *Draft {
	return &Draft{base: base, Value: Clone(base)}
}

// Finalize implements Engine.
func (JSONEngine) Finalize(d *Draft, onPatches func(forward, reverse []Patch)) (any, error) {
	next, err := Normalize(d.Value)
	if err != nil {
		return nil, err
	}
	forward, reverse := Diff(d.base, next)
	if onPatches != nil {
		onPatches(forward, reverse)
	}
	if len(forward) == 0 {
		return d.base, nil
	}
	return next, nil
}
