package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/expr-lang/expr"

	"github.com/webstudio-is/immerhin/internal/patch"
)

// Assertion kinds.
const (
	AssertExpect = "expect"
	AssertSchema = "schema"
	AssertExpr   = "expr"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Target   string // Namespace or expression under test
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s %s\n", e.Type, e.Target)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// Check evaluates the scenario's expectations against a result. All
// failures are reported, joined into one error.
func Check(s *Scenario, r *Result) error {
	var errs []error
	for _, def := range s.Containers {
		if want, ok := s.Expect[def.Namespace]; ok {
			errs = append(errs, checkExpect(def.Namespace, want, r.Final[def.Namespace]))
		}
	}
	for _, def := range s.Containers {
		if def.Schema != "" {
			errs = append(errs, checkSchema(def, r.Final[def.Namespace]))
		}
	}
	env := exprEnv(r)
	for _, src := range s.Assertions {
		errs = append(errs, checkExpr(src, env))
	}
	return errors.Join(errs...)
}

func checkExpect(namespace string, want, got any) error {
	norm, err := patch.Normalize(want)
	if err != nil {
		return fmt.Errorf("expect %s: %w", namespace, err)
	}
	if reflect.DeepEqual(norm, got) {
		return nil
	}
	return &AssertionError{
		Type:     AssertExpect,
		Target:   namespace,
		Expected: render(norm),
		Actual:   render(got),
	}
}

// checkSchema unifies the value with its CUE schema and requires the
// result to be concrete and error free. The value is compiled from its
// JSON text so numbers keep their exact literal.
func checkSchema(def ContainerDef, got any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(def.Schema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("schema %s: %w", def.Namespace, err)
	}
	data, err := json.Marshal(got)
	if err != nil {
		return fmt.Errorf("schema %s: %w", def.Namespace, err)
	}
	v := ctx.CompileBytes(data, cue.Filename(def.Namespace+".json"))
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &AssertionError{
			Type:     AssertSchema,
			Target:   def.Namespace,
			Expected: def.Schema,
			Actual:   fmt.Sprintf("%s (%v)", render(got), err),
		}
	}
	return nil
}

func exprEnv(r *Result) map[string]any {
	return map[string]any{
		"values":  exprValues(r.Final),
		"history": anySlice(r.History),
		"synced":  anySlice(r.SyncedIDs()),
		"events":  len(r.Trace),
	}
}

// exprValues re-decodes the final values with float64 numbers, which expr
// compares against numeric literals.
func exprValues(final map[string]any) map[string]any {
	data, err := json.Marshal(final)
	if err != nil {
		return final
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return final
	}
	return out
}

// anySlice lets expressions compare id lists against array literals.
func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func checkExpr(src string, env map[string]any) error {
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return fmt.Errorf("compile assertion %q: %w", src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("run assertion %q: %w", src, err)
	}
	if ok, _ := out.(bool); !ok {
		return &AssertionError{
			Type:     AssertExpr,
			Target:   src,
			Expected: "true",
			Actual:   fmt.Sprint(out),
		}
	}
	return nil
}

func render(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
