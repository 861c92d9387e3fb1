package patch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, src string) any {
	t.Helper()
	var v any
	require.NoError(t, Unmarshal([]byte(src), &v))
	return v
}

func TestPath_Pointer(t *testing.T) {
	tests := []struct {
		name string
		path Path
		want string
	}{
		{"root", Path{}, ""},
		{"key", Path{"items"}, "/items"},
		{"index", Path{"items", 2}, "/items/2"},
		{"float index", Path{"items", float64(3)}, "/items/3"},
		{"number index", Path{"items", json.Number("4")}, "/items/4"},
		{"escaped", Path{"a/b", "c~d"}, "/a~1b/c~0d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.path.Pointer())
		})
	}
}

func TestPatch_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Patch{Op: OpReplace, Path: Path{"a", 0}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"replace","path":["a",0],"value":null}`, string(data))

	data, err = json.Marshal(Patch{Op: OpRemove, Path: Path{"a"}, Value: "ignored"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"remove","path":["a"]}`, string(data))

	data, err = json.Marshal(Patch{Op: OpAdd, Value: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"add","path":[],"value":1}`, string(data))
}

func TestDiff_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		base string
		next string
		ops  int
	}{
		{"identical", `{"a":1}`, `{"a":1}`, 0},
		{"append to array", `[]`, `["x"]`, 1},
		{"append twice", `["x"]`, `["x","y","z"]`, 2},
		{"shrink array", `["x","y","z"]`, `["x"]`, 2},
		{"replace element", `["x","y"]`, `["x","q"]`, 1},
		{"add key", `{"a":1}`, `{"a":1,"b":{"c":true}}`, 1},
		{"remove key", `{"a":1,"b":2}`, `{"b":2}`, 1},
		{"nested change", `{"a":{"b":[1,2]}}`, `{"a":{"b":[1,3,4]}}`, 2},
		{"kind change", `{"a":[1]}`, `{"a":{"x":1}}`, 1},
		{"root scalar", `1`, `"one"`, 1},
		{"escaped keys", `{"a/b":1}`, `{"a/b":2,"c~":3}`, 2},
		{"null value", `{"a":1}`, `{"a":null}`, 1},
		{"large integers", `{"id":9007199254740993,"n":0}`, `{"id":9007199254740993,"n":1}`, 1},
		{"large integer change", `[9007199254740993]`, `[9007199254740995]`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := mustDoc(t, tt.base)
			next := mustDoc(t, tt.next)

			forward, reverse := Diff(base, next)
			assert.Len(t, forward, tt.ops)
			assert.Len(t, reverse, tt.ops)

			got, err := Apply(base, forward)
			require.NoError(t, err)
			assert.Equal(t, next, got, "forward patches must reach next")

			back, err := Apply(got, reverse)
			require.NoError(t, err)
			assert.Equal(t, base, back, "reverse patches must restore base")
		})
	}
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	base := mustDoc(t, `{"items":["x"]}`)
	_, err := Apply(base, []Patch{{Op: OpAdd, Path: Path{"items", 1}, Value: "y"}})
	require.NoError(t, err)
	assert.Equal(t, mustDoc(t, `{"items":["x"]}`), base)
}

func TestApply_Errors(t *testing.T) {
	base := mustDoc(t, `{"items":[]}`)

	_, err := Apply(base, []Patch{{Op: OpRemove, Path: Path{"missing"}}})
	assert.Error(t, err)

	_, err = Apply(base, []Patch{{Op: "move"}})
	assert.Error(t, err)

	_, err = Apply(base, []Patch{{Op: OpTest, Value: map[string]any{"items": []any{"x"}}}})
	assert.Error(t, err)
}

func TestJSONEngine_Finalize(t *testing.T) {
	var e JSONEngine
	base := mustDoc(t, `{"todos":[]}`)

	d := e.BeginDraft(base)
	d.Value.(map[string]any)["todos"] = append(d.Value.(map[string]any)["todos"].([]any), "write tests")
	assert.Equal(t, mustDoc(t, `{"todos":[]}`), base, "editing the draft must not touch the base")

	var forward, reverse []Patch
	next, err := e.Finalize(d, func(f, r []Patch) {
		forward, reverse = f, r
	})
	require.NoError(t, err)
	assert.Equal(t, mustDoc(t, `{"todos":["write tests"]}`), next)
	assert.Equal(t, []Patch{{Op: OpAdd, Path: Path{"todos", 0}, Value: "write tests"}}, forward)
	assert.Equal(t, []Patch{{Op: OpRemove, Path: Path{"todos", 0}}}, reverse)
}

func TestJSONEngine_FinalizeUnchanged(t *testing.T) {
	var e JSONEngine
	base := mustDoc(t, `["x"]`)

	d := e.BeginDraft(base)
	called := false
	next, err := e.Finalize(d, func(f, r []Patch) {
		called = true
		assert.Empty(t, f)
		assert.Empty(t, r)
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, base, next)
}

func TestJSONEngine_FinalizeNormalizesGoValues(t *testing.T) {
	type item struct {
		Name string `json:"name"`
		Done bool   `json:"done"`
	}
	var e JSONEngine
	d := e.BeginDraft([]any{})
	d.Value = []item{{Name: "a", Done: true}}

	next, err := e.Finalize(d, nil)
	require.NoError(t, err)
	assert.Equal(t, mustDoc(t, `[{"name":"a","done":true}]`), next)
}

func TestDecode(t *testing.T) {
	var out []string
	require.NoError(t, Decode([]any{"a", "b"}, &out))
	assert.Equal(t, []string{"a", "b"}, out)

	var n int
	assert.Error(t, Decode("nope", &n))
}

func TestApply_KeepsLargeIntegers(t *testing.T) {
	base := mustDoc(t, `{"id":9007199254740993,"tags":[]}`)

	got, err := Apply(base, []Patch{{Op: OpAdd, Path: Path{"tags", 0}, Value: "x"}})
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), got.(map[string]any)["id"])

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":9007199254740993,"tags":["x"]}`, string(data))
}

func TestNormalize_KeepsLargeIntegers(t *testing.T) {
	type record struct {
		ID    int64 `json:"id"`
		Count int   `json:"count"`
	}
	doc, err := Normalize(record{ID: 1<<53 + 1, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":    json.Number("9007199254740993"),
		"count": json.Number("2"),
	}, doc)

	var back record
	require.NoError(t, Decode(doc, &back))
	assert.Equal(t, record{ID: 1<<53 + 1, Count: 2}, back)
}

func TestUnmarshal(t *testing.T) {
	var v any
	require.NoError(t, Unmarshal([]byte(` [1, 2.5] `), &v))
	assert.Equal(t, []any{json.Number("1"), json.Number("2.5")}, v)

	assert.Error(t, Unmarshal([]byte(`{} {}`), &v))
	assert.Error(t, Unmarshal([]byte(`{`), &v))
}
