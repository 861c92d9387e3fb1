package patch

import (
	"encoding/json"
	"fmt"
	"reflect"

	jsonpatch "github.com/evanphx/json-patch"
)

// Apply replays patches, in order, against doc and returns the resulting
// document. doc itself is never modified.
//
// Operations addressing the document root are handled here because JSON
// pointers cannot express whole-document replacement; everything else is
// delegated to json-patch in contiguous runs.
func Apply(doc any, patches []Patch) (any, error) {
	if len(patches) == 0 {
		return doc, nil
	}
	cur, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	var pending []Patch
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		ops, err := encodeOperations(pending)
		if err != nil {
			return err
		}
		p, err := jsonpatch.DecodePatch(ops)
		if err != nil {
			return fmt.Errorf("decode patch: %w", err)
		}
		out, err := p.Apply(cur)
		if err != nil {
			return fmt.Errorf("apply patch: %w", err)
		}
		cur = out
		pending = pending[:0]
		return nil
	}

	for _, p := range patches {
		if len(p.Path) > 0 {
			pending = append(pending, p)
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		switch p.Op {
		case OpAdd, OpReplace:
			cur, err = json.Marshal(p.Value)
			if err != nil {
				return nil, fmt.Errorf("encode root value: %w", err)
			}
		case OpRemove:
			cur = []byte("null")
		case OpTest:
			want, err := Normalize(p.Value)
			if err != nil {
				return nil, err
			}
			var got any
			if err := Unmarshal(cur, &got); err != nil {
				return nil, fmt.Errorf("decode document: %w", err)
			}
			if !reflect.DeepEqual(got, want) {
				return nil, fmt.Errorf("apply patch: test failed at document root")
			}
		default:
			return nil, fmt.Errorf("apply patch: unsupported operation %q", p.Op)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	var out any
	if err := Unmarshal(cur, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

type operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value *any   `json:"value,omitempty"`
}

func encodeOperations(patches []Patch) ([]byte, error) {
	ops := make([]operation, len(patches))
	for i, p := range patches {
		ops[i] = operation{Op: p.Op, Path: p.Path.Pointer()}
		if p.Op != OpRemove {
			v := p.Value
			ops[i].Value = &v
		}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	return data, nil
}
