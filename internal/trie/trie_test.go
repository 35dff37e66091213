package trie

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func tok(uri string) []string { return strings.Split(uri, ".") }

func TestInsertFindErase(t *testing.T) {
	tr := New[int]()
	_, existed := tr.Insert(tok("a.b.c"), 1)
	require.False(t, existed)

	v, ok := tr.Find(tok("a.b.c"))
	require.True(t, ok)
	require.Equal(t, 1, v)

	prev, existed := tr.Insert(tok("a.b.c"), 2)
	require.True(t, existed)
	require.Equal(t, 1, prev)

	removed, ok := tr.Erase(tok("a.b.c"))
	require.True(t, ok)
	require.Equal(t, 2, removed)

	_, ok = tr.Find(tok("a.b.c"))
	require.False(t, ok)
	require.Equal(t, 0, tr.Len())
}

func TestEraseDoesNotInvalidateSiblingLookup(t *testing.T) {
	tr := New[string]()
	tr.Insert(tok("a.b"), "ab")
	tr.Insert(tok("a.c"), "ac")

	_, ok := tr.Erase(tok("a.b"))
	require.True(t, ok)

	v, ok := tr.Find(tok("a.c"))
	require.True(t, ok)
	require.Equal(t, "ac", v)
}

func TestWalkLexicographicOrder(t *testing.T) {
	tr := New[int]()
	tr.Insert(tok("b"), 2)
	tr.Insert(tok("a"), 1)
	tr.Insert(tok("c"), 3)

	var order []string
	tr.Walk(func(e Entry[int]) { order = append(order, Untok(e.Key)) })
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func Untok(tokens []string) string { return strings.Join(tokens, ".") }

// TestWildcardPatternSet exercises the scenario from spec.md §8:
// for published URI "a.b.c" exactly {"a..c", "a.b.", "a..", ".b.", ".."}
// must fire, and for "a.x.x" exactly {"a..", "..", ".x.", "..x", ".x.x"}.
func TestWildcardPatternSet(t *testing.T) {
	patterns := []string{
		"", ".", "a..c", "a.b.", "a..", ".b.", "..", "x..", ".x.", "..x",
		"x..x", "x.x.", ".x.x", "x.x.x",
	}
	tr := New[string]()
	for _, p := range patterns {
		tr.Insert(tok(p), p)
	}

	assertMatches(t, tr, "a.b.c", []string{"a..c", "a.b.", "a..", ".b.", ".."})
	assertMatches(t, tr, "a.x.x", []string{"a..", "..", ".x.", "..x", ".x.x"})
}

func assertMatches(t *testing.T, tr *Trie[string], topic string, want []string) {
	t.Helper()
	entries := tr.WildcardMatches(tok(topic))
	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, Untok(e.Key))
	}
	sort.Strings(got)
	sortedWant := append([]string(nil), want...)
	sort.Strings(sortedWant)
	require.Equal(t, sortedWant, got)
}

func TestMatcherRestartable(t *testing.T) {
	tr := New[int]()
	tr.Insert(tok("a.b"), 1)
	tr.Insert(tok("a."), 2)

	m1 := tr.NewMatcher(tok("a.b"))
	var first []string
	for !m1.Done() {
		first = append(first, Untok(m1.Key()))
		m1.Next()
	}

	m2 := tr.NewMatcher(tok("a.b"))
	var second []string
	for !m2.Done() {
		second = append(second, Untok(m2.Key()))
		m2.Next()
	}

	require.Equal(t, first, second)
	require.ElementsMatch(t, []string{"a.b", "a."}, first)
}

func TestWalkPrefixes(t *testing.T) {
	tr := New[string]()
	tr.Insert(tok("com"), "com")
	tr.Insert(tok("com.example"), "com.example")
	tr.Insert(tok("com.other"), "com.other")

	var got []string
	tr.WalkPrefixes(tok("com.example.foo"), func(e Entry[string]) { got = append(got, e.Value) })
	require.Equal(t, []string{"com", "com.example"}, got)
}

func TestCursorAscendDescend(t *testing.T) {
	tr := New[int]()
	tr.Insert(tok("a.b"), 42)

	root := tr.Root()
	child, ok := root.Descend("a")
	require.True(t, ok)
	require.False(t, child.HasValue())

	grandchild, ok := child.Descend("b")
	require.True(t, ok)
	require.True(t, grandchild.HasValue())
	require.Equal(t, 42, grandchild.Value())

	back, ok := grandchild.Ascend()
	require.True(t, ok)
	require.Equal(t, child.Key(), back.Key())
}
