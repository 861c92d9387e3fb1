package patch

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operation names understood by Apply.
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
	OpTest    = "test"
)

// Path addresses a location inside a document. Elements are object keys
// (string) or array indices (int). Paths decoded from JSON carry
// json.Number or float64 indices, which are accepted wherever an int is.
type Path []any

// Pointer renders the path as an RFC 6901 JSON pointer.
func (p Path) Pointer() string {
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		b.WriteString(pointerSegment(seg))
	}
	return b.String()
}

// String implements fmt.Stringer.
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	return p.Pointer()
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func pointerSegment(seg any) string {
	switch s := seg.(type) {
	case string:
		return pointerEscaper.Replace(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10)
		}
	case json.Number:
		if n, err := s.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
	}
	return pointerEscaper.Replace(fmt.Sprint(seg))
}

// Patch is one elementary step of a state transition.
type Patch struct {
	Op    string `json:"op"`
	Path  Path   `json:"path"`
	Value any    `json:"value,omitempty"`
}

// MarshalJSON keeps "value" on every operation except remove, so that
// replacing something with null survives the round trip.
func (p Patch) MarshalJSON() ([]byte, error) {
	type wirePatch struct {
		Op    string `json:"op"`
		Path  Path   `json:"path"`
		Value *any   `json:"value,omitempty"`
	}
	w := wirePatch{Op: p.Op, Path: p.Path}
	if w.Path == nil {
		w.Path = Path{}
	}
	if p.Op != OpRemove {
		v := p.Value
		w.Value = &v
	}
	return json.Marshal(w)
}

func (p Patch) String() string {
	if p.Op == OpRemove {
		return fmt.Sprintf("%s %s", p.Op, p.Path)
	}
	v, err := json.Marshal(p.Value)
	if err != nil {
		return fmt.Sprintf("%s %s %v", p.Op, p.Path, p.Value)
	}
	return fmt.Sprintf("%s %s %s", p.Op, p.Path, v)
}
