package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runInline(t *testing.T, src string) (*Scenario, *Result) {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	r, err := Run(s)
	require.NoError(t, err)
	return s, r
}

const pushScenario = `
name: push
containers:
  - namespace: a
    initial: []
    schema: "[...string]"
steps:
  - action: transaction
    edits:
      - namespace: a
        ops:
          - {op: add, path: [0], value: x}
`

func TestCheck_Passes(t *testing.T) {
	s, r := runInline(t, pushScenario+`
expect:
  a: [x]
assertions:
  - "len(values.a) == 1"
  - 'values.a[0] == "x"'
  - 'history == ["tx-1"]'
  - "len(synced) == 0"
  - "events == 1"
`)
	assert.NoError(t, Check(s, r))
}

func TestCheck_ExpectMismatch(t *testing.T) {
	s, r := runInline(t, pushScenario+`
expect:
  a: [y]
`)
	err := Check(s, r)
	require.Error(t, err)

	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, AssertExpect, ae.Type)
	assert.Equal(t, "a", ae.Target)
	assert.Equal(t, `["y"]`, ae.Expected)
	assert.Equal(t, `["x"]`, ae.Actual)
}

func TestCheck_SchemaViolation(t *testing.T) {
	s, r := runInline(t, `
name: schema
containers:
  - namespace: a
    initial: []
    schema: "[...string]"
steps:
  - action: transaction
    edits:
      - namespace: a
        ops:
          - {op: add, path: [0], value: true}
`)
	err := Check(s, r)
	require.Error(t, err)

	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, AssertSchema, ae.Type)
}

func TestCheck_InvalidSchema(t *testing.T) {
	s, r := runInline(t, pushScenario)
	s.Containers[0].Schema = "[...string"
	err := Check(s, r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema a")
}

func TestCheck_ExprFailure(t *testing.T) {
	s, r := runInline(t, pushScenario+`
assertions:
  - "events == 2"
  - "len(values.a) =="
`)
	err := Check(s, r)
	require.Error(t, err)

	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, AssertExpr, ae.Type)
	assert.Equal(t, "events == 2", ae.Target)
	assert.Contains(t, err.Error(), "compile assertion")
}

func TestCheck_Numbers(t *testing.T) {
	s, r := runInline(t, `
name: numbers
containers:
  - namespace: c
    initial: {id: 9007199254740993, n: 1}
    schema: "{id: int, n: int}"
steps:
  - action: transaction
    edits:
      - namespace: c
        ops:
          - {op: replace, path: [n], value: 2}
  - action: undo
  - action: redo
expect:
  c: {id: 9007199254740993, n: 2}
assertions:
  - "values.c.n == 2"
  - "values.c.n + 1 == 3"
`)
	assert.NoError(t, Check(s, r))

	s.Expect["c"] = map[string]any{"id": 9007199254740992, "n": 2}
	err := Check(s, r)
	require.Error(t, err)
	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, `{"id":9007199254740993,"n":2}`, ae.Actual)
}
