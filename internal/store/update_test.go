package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webstudio-is/immerhin/internal/value"
)

type todo struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

func TestUpdate(t *testing.T) {
	s := newTestStore()
	todos := value.New([]todo{})
	s.Register("todos", todos)

	next, err := Update(s, todos, func(list *[]todo) {
		*list = append(*list, todo{Title: "ship"})
	})
	require.NoError(t, err)
	assert.Equal(t, []todo{{Title: "ship"}}, next)
	assert.Equal(t, []todo{{Title: "ship"}}, todos.Read())

	next, err = Update(s, todos, func(list *[]todo) {
		(*list)[0].Done = true
	})
	require.NoError(t, err)
	assert.True(t, next[0].Done)

	entries := s.PopAll()
	require.Len(t, entries, 2)
	assert.Equal(t, "replace", entries[1].Changes[0].Patches[0].Op)

	require.NoError(t, s.Undo())
	assert.False(t, todos.Read()[0].Done)
}

func TestUpdate2(t *testing.T) {
	s := newTestStore()
	todos := value.New([]todo{})
	counter := value.New(0)
	s.Register("todos", todos)
	s.Register("counter", counter)

	gotTodos, gotCount, err := Update2(s, todos, counter, func(list *[]todo, n *int) {
		*list = append(*list, todo{Title: "a"})
		*n++
	})
	require.NoError(t, err)
	assert.Len(t, gotTodos, 1)
	assert.Equal(t, 1, gotCount)
	assert.Equal(t, []string{"tx-1"}, s.History())

	require.NoError(t, s.Undo())
	assert.Empty(t, todos.Read())
	assert.Equal(t, 0, counter.Read())
}

func TestUpdate_Unregistered(t *testing.T) {
	s := newTestStore()
	todos := value.New([]todo{})

	_, err := Update(s, todos, func(*[]todo) {})
	assert.True(t, IsConfigurationError(err))
}

type ledger struct {
	ID    int64 `json:"id"`
	Count int   `json:"count"`
}

func TestUpdate_KeepsLargeIntegers(t *testing.T) {
	s := newTestStore()
	l := value.New(ledger{ID: 1<<53 + 1})
	s.Register("ledger", l)

	next, err := Update(s, l, func(v *ledger) { v.Count = 1 })
	require.NoError(t, err)
	assert.Equal(t, ledger{ID: 1<<53 + 1, Count: 1}, next)
	assert.Equal(t, ledger{ID: 1<<53 + 1, Count: 1}, l.Read())

	entries := s.PopAll()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Changes[0].Patches, 1, "untouched fields produce no patch")

	require.NoError(t, s.Undo())
	assert.Equal(t, ledger{ID: 1<<53 + 1}, l.Read())

	require.NoError(t, s.Redo())
	assert.Equal(t, ledger{ID: 1<<53 + 1, Count: 1}, l.Read())
}
