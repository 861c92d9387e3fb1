package patch

import (
	"reflect"
	"slices"
	"sort"
)

// Diff computes the patches that turn base into next, together with their
// inverse. Applying forward to base yields next; applying reverse to next
// yields base. Both documents must already be normalised trees.
//
// Objects are compared key by key in sorted order, arrays index by index
// with growth and shrinkage handled at the tail. Anything else that differs
// is replaced wholesale.
func Diff(base, next any) (forward, reverse []Patch) {
	d := &differ{}
	d.diff(Path{}, base, next)
	slices.Reverse(d.reverse)
	return d.forward, d.reverse
}

type differ struct {
	forward []Patch
	reverse []Patch
}

func (d *differ) emit(fwd, rev Patch) {
	fwd.Value = Clone(fwd.Value)
	rev.Value = Clone(rev.Value)
	d.forward = append(d.forward, fwd)
	d.reverse = append(d.reverse, rev)
}

func (d *differ) diff(path Path, base, next any) {
	switch b := base.(type) {
	case map[string]any:
		if n, ok := next.(map[string]any); ok {
			d.diffObject(path, b, n)
			return
		}
	case []any:
		if n, ok := next.([]any); ok {
			d.diffArray(path, b, n)
			return
		}
	}
	if !reflect.DeepEqual(base, next) {
		d.emit(
			Patch{Op: OpReplace, Path: path, Value: next},
			Patch{Op: OpReplace, Path: path, Value: base},
		)
	}
}

func (d *differ) diffObject(path Path, base, next map[string]any) {
	for _, key := range sortedKeys(base) {
		child := append(slices.Clip(path), key)
		nv, ok := next[key]
		if !ok {
			d.emit(
				Patch{Op: OpRemove, Path: child},
				Patch{Op: OpAdd, Path: child, Value: base[key]},
			)
			continue
		}
		d.diff(child, base[key], nv)
	}
	for _, key := range sortedKeys(next) {
		if _, ok := base[key]; ok {
			continue
		}
		child := append(slices.Clip(path), key)
		d.emit(
			Patch{Op: OpAdd, Path: child, Value: next[key]},
			Patch{Op: OpRemove, Path: child},
		)
	}
}

func (d *differ) diffArray(path Path, base, next []any) {
	common := min(len(base), len(next))
	for i := 0; i < common; i++ {
		d.diff(append(slices.Clip(path), i), base[i], next[i])
	}
	// Shrink from the tail so indices stay valid while removing.
	for i := len(base) - 1; i >= len(next); i-- {
		child := append(slices.Clip(path), i)
		d.emit(
			Patch{Op: OpRemove, Path: child},
			Patch{Op: OpAdd, Path: child, Value: base[i]},
		)
	}
	for i := len(base); i < len(next); i++ {
		child := append(slices.Clip(path), i)
		d.emit(
			Patch{Op: OpAdd, Path: child, Value: next[i]},
			Patch{Op: OpRemove, Path: child},
		)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
