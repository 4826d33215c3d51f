package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func items(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func TestDeltaSetReplacesVector(t *testing.T) {
	res := Delta(VerbSet, items("a", "b", "c"), items("b", "c", "d"))
	require.Equal(t, items("b", "c", "d"), res.Final)
	require.Equal(t, items("d"), res.Plus)
	require.Equal(t, items("a"), res.Minus)
}

func TestDeltaPlusUnions(t *testing.T) {
	res := Delta(VerbPlus, items("a", "b"), items("b", "c"))
	require.Equal(t, items("a", "b", "c"), res.Final)
	require.Equal(t, items("c"), res.Plus)
	require.Empty(t, res.Minus)
}

func TestDeltaMinusRemoves(t *testing.T) {
	res := Delta(VerbMinus, items("a", "b", "c"), items("b", "c", "d"))
	require.Equal(t, items("a"), res.Final)
	require.Empty(t, res.Plus)
	require.Equal(t, items("b", "c"), res.Minus)
}

func TestDeltaIdempotence(t *testing.T) {
	v := items("a", "b", "c")
	res := Delta(VerbSet, v, v)
	require.Empty(t, res.Plus)
	require.Empty(t, res.Minus)
	require.Equal(t, v, res.Final)
}

func TestDeltaEmptyOld(t *testing.T) {
	res := Delta(VerbSet, nil, items("a", "b"))
	require.Equal(t, items("a", "b"), res.Final)
	require.Equal(t, items("a", "b"), res.Plus)
	require.Empty(t, res.Minus)
}

func TestSortItemsDropsDuplicates(t *testing.T) {
	got := SortItems(items("b", "a", "b", "c", "a"))
	require.Equal(t, items("a", "b", "c"), got)
}

func TestApplyAbsDeltaCancelsContradiction(t *testing.T) {
	// A prior abs_delta recorded "x" as removed. A new local plus that
	// re-adds "x" should cancel the historical removal rather than
	// accumulate alongside it.
	prior := AbsDelta{Minus: items("x")}
	next := applyAbsDelta(prior, items("x"), nil)
	require.Empty(t, next.Plus)
	require.Empty(t, next.Minus)
}

func TestApplyAbsDeltaAccumulates(t *testing.T) {
	prior := AbsDelta{Plus: items("a")}
	next := applyAbsDelta(prior, items("b"), nil)
	require.Equal(t, items("a", "b"), next.Plus)
	require.Empty(t, next.Minus)
}
