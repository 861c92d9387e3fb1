package store

import (
	"github.com/webstudio-is/immerhin/internal/patch"
	"github.com/webstudio-is/immerhin/internal/value"
)

// Update edits one typed container in a transaction and returns its new
// value.
//
//	todos := value.New([]Todo{})
//	s.Register("todos", todos)
//	next, err := store.Update(s, todos, func(t *[]Todo) {
//		*t = append(*t, Todo{Title: "ship"})
//	})
func Update[A any](s *Store, a *value.Container[A], fn func(*A)) (A, error) {
	var zero A
	values, err := s.CreateTransaction([]Container{a}, func(drafts []*patch.Draft) error {
		return editDraft(drafts[0], fn)
	}, "")
	if err != nil {
		return zero, err
	}
	var out A
	if err := patch.Decode(values[0], &out); err != nil {
		return zero, err
	}
	return out, nil
}

// Update2 edits two typed containers in one atomic transaction.
func Update2[A, B any](s *Store, a *value.Container[A], b *value.Container[B], fn func(*A, *B)) (A, B, error) {
	var (
		zeroA A
		zeroB B
	)
	values, err := s.CreateTransaction([]Container{a, b}, func(drafts []*patch.Draft) error {
		var va A
		if err := patch.Decode(drafts[0].Value, &va); err != nil {
			return err
		}
		var vb B
		if err := patch.Decode(drafts[1].Value, &vb); err != nil {
			return err
		}
		fn(&va, &vb)
		drafts[0].Value = va
		drafts[1].Value = vb
		return nil
	}, "")
	if err != nil {
		return zeroA, zeroB, err
	}
	var (
		outA A
		outB B
	)
	if err := patch.Decode(values[0], &outA); err != nil {
		return zeroA, zeroB, err
	}
	if err := patch.Decode(values[1], &outB); err != nil {
		return zeroA, zeroB, err
	}
	return outA, outB, nil
}

func editDraft[V any](d *patch.Draft, fn func(*V)) error {
	var v V
	if err := patch.Decode(d.Value, &v); err != nil {
		return err
	}
	fn(&v)
	d.Value = v
	return nil
}
