package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	e, err := NewEngine(&Config{})
	require.NoError(t, err)

	require.NoError(t, e.Replace(context.TODO(), []Fact{
		{Predicate: "entity", Args: []interface{}{"items", int64(1)}},
		{Predicate: "entity", Args: []interface{}{"items", int64(2)}},
		{Predicate: "entity", Args: []interface{}{"items", int64(3)}},
		{Predicate: "field", Args: []interface{}{"items", int64(1), "status", "open"}},
		{Predicate: "field", Args: []interface{}{"items", int64(2), "status", "done"}},
		{Predicate: "field", Args: []interface{}{"items", int64(3), "status", "open"}},
		{Predicate: "field", Args: []interface{}{"items", int64(1), "title", "buy milk"}},
		{Predicate: "located", Args: []interface{}{"items", int64(1), int64(4)}},
		{Predicate: "located", Args: []interface{}{"items", int64(2), int64(4)}},
		{Predicate: "located", Args: []interface{}{"items", int64(3), int64(7)}},
	}))
	return e
}

func TestEngine_BasePredicates(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Query(context.TODO(), "entity(\"items\", Id)")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 3)

	res, err = e.Query(context.TODO(), "field(\"items\", Id, \"status\", \"open\")")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 2)
	ids := map[int64]bool{}
	for _, row := range res.Bindings {
		ids[row["Id"].(int64)] = true
	}
	require.True(t, ids[1] && ids[3])
}

func TestEngine_Rules(t *testing.T) {
	e := newTestEngine(t)

	err := e.LoadRules(`
Decl open_item(Id) bound [/number].
open_item(Id) :- field("items", Id, "status", "open").

Decl colocated(A, B) bound [/number, /number].
colocated(A, B) :- located("items", A, P), located("items", B, P), A < B.
`)
	require.NoError(t, err)

	res, err := e.Query(context.TODO(), "open_item(Id)")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 2)

	// entities 1 and 2 share partition 4
	res, err = e.Query(context.TODO(), "colocated(A, B)")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	require.Equal(t, int64(1), res.Bindings[0]["A"])
	require.Equal(t, int64(2), res.Bindings[0]["B"])

	// derived predicates survive a fact replacement
	require.NoError(t, e.Replace(context.TODO(), []Fact{
		{Predicate: "field", Args: []interface{}{"items", int64(9), "status", "open"}},
	}))
	res, err = e.Query(context.TODO(), "open_item(Id)")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	require.Equal(t, int64(9), res.Bindings[0]["Id"])
}

func TestEngine_DeclWithoutModes(t *testing.T) {
	e := newTestEngine(t)

	// `Decl p(...) bound [...]` carries no mode descriptors; queries must
	// still evaluate, with constants and variables in any position
	res, err := e.Query(context.TODO(), "located(\"items\", Id, Partition)")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 3)

	res, err = e.Query(context.TODO(), "located(Space, 1, Partition)")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	require.Equal(t, "items", res.Bindings[0]["Space"])
	require.Equal(t, int64(4), res.Bindings[0]["Partition"])
}

func TestEngine_Errors(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Query(context.TODO(), "unknown(X)")
	require.Error(t, err)

	_, err = e.Query(context.TODO(), "")
	require.Error(t, err)

	err = e.Replace(context.TODO(), []Fact{{Predicate: "entity", Args: []interface{}{"items"}}})
	require.Error(t, err)

	err = e.LoadRules("this is not datalog")
	require.Error(t, err)
}

func TestEngine_FactCount(t *testing.T) {
	e := newTestEngine(t)
	require.Equal(t, 10, e.FactCount())
}
