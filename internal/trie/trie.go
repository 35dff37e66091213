// Package trie implements a generic ordered map from a sequence of URI
// tokens to a value. It backs the broker's prefix and wildcard
// subscription indices (see internal/broker) and is also exercised
// directly by its own test suite for the wildcard-matching contract in
// spec.md §8.
//
// The trie never compacts or rebalances nodes: a node's storage address
// only changes when the node itself is erased, so a Cursor held by a
// caller stays valid while sibling subtrees are mutated. Find and
// WildcardMatches return values and Entry copies, not node pointers.
// The wildcard matcher is expressed in terms of the Cursor primitives;
// WalkPrefixes descends the node children directly.
package trie

import "sort"

// node is one position in the trie. Children are keyed by a single URI
// token; an empty token represents the wildcard position. A node may be
// an interior node (no value, purely structural) or hold a value for the
// full token sequence leading to it.
type node[V any] struct {
	token    string
	parent   *node[V]
	children map[string]*node[V]
	hasValue bool
	value    V
}

func newNode[V any](token string, parent *node[V]) *node[V] {
	return &node[V]{token: token, parent: parent, children: map[string]*node[V]{}}
}

func (n *node[V]) sortedChildKeys() []string {
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Trie is a TokenTrie mapping a sequence of URI tokens to a value of
// type V. The zero value is ready to use.
type Trie[V any] struct {
	root *node[V]
	size int
}

// New creates an empty trie.
func New[V any]() *Trie[V] {
	return &Trie[V]{root: newNode[V]("", nil)}
}

func (t *Trie[V]) ensureRoot() *node[V] {
	if t.root == nil {
		t.root = newNode[V]("", nil)
	}
	return t.root
}

// Len reports the number of values stored in the trie.
func (t *Trie[V]) Len() int { return t.size }

// Insert stores value under the given token key, replacing any existing
// value for the same key. It reports the previous value and whether one
// existed. Insertion never invalidates cursors or matchers positioned on
// other nodes: only the path from the root to the new node is touched.
func (t *Trie[V]) Insert(key []string, value V) (previous V, existed bool) {
	n := t.ensureRoot()
	for _, tok := range key {
		child, ok := n.children[tok]
		if !ok {
			child = newNode[V](tok, n)
			n.children[tok] = child
		}
		n = child
	}
	if n.hasValue {
		previous = n.value
		existed = true
	} else {
		t.size++
	}
	n.value = value
	n.hasValue = true
	return previous, existed
}

// Find looks up the value stored exactly at key.
func (t *Trie[V]) Find(key []string) (V, bool) {
	n := t.walk(key)
	if n == nil || !n.hasValue {
		var zero V
		return zero, false
	}
	return n.value, true
}

func (t *Trie[V]) walk(key []string) *node[V] {
	n := t.root
	for _, tok := range key {
		if n == nil {
			return nil
		}
		n = n.children[tok]
	}
	return n
}

// Erase removes the value stored at key, pruning now-empty interior
// nodes back up towards the root. It reports the removed value and
// whether one existed. Erasing a node never invalidates cursors or
// matchers positioned elsewhere in the trie: only the erased node's
// ancestors that become childless and valueless are unlinked.
func (t *Trie[V]) Erase(key []string) (V, bool) {
	n := t.walk(key)
	if n == nil || !n.hasValue {
		var zero V
		return zero, false
	}
	removed := n.value
	var zero V
	n.value = zero
	n.hasValue = false
	t.size--

	// Prune the now-valueless, now-childless tail of the path.
	for n != nil && n.parent != nil && !n.hasValue && len(n.children) == 0 {
		parent := n.parent
		delete(parent.children, n.token)
		n = parent
	}
	return removed, true
}

// Cursor is a first-class traversal position in the trie. It exposes the
// primitives the wildcard matcher and the broker's subscriber sweep are
// built from: depth-first advance (over every node, or only value
// nodes), level-wise advance, ascend, and descend.
type Cursor[V any] struct {
	n *node[V]
}

// Root returns a cursor positioned at the trie's root node.
func (t *Trie[V]) Root() Cursor[V] {
	return Cursor[V]{t.ensureRoot()}
}

// Valid reports whether the cursor refers to an existing node.
func (c Cursor[V]) Valid() bool { return c.n != nil }

// HasValue reports whether the current node carries a stored value.
func (c Cursor[V]) HasValue() bool { return c.n != nil && c.n.hasValue }

// Value returns the value stored at the current node. Only meaningful
// when HasValue is true.
func (c Cursor[V]) Value() V { return c.n.value }

// Key reconstructs the full token sequence leading to the current node.
func (c Cursor[V]) Key() []string {
	if c.n == nil {
		return nil
	}
	var rev []string
	for n := c.n; n != nil && n.parent != nil; n = n.parent {
		rev = append(rev, n.token)
	}
	key := make([]string, len(rev))
	for i, tok := range rev {
		key[len(rev)-1-i] = tok
	}
	return key
}

// Descend moves the cursor into the child reached by token, reporting
// whether that child exists.
func (c Cursor[V]) Descend(token string) (Cursor[V], bool) {
	if c.n == nil {
		return Cursor[V]{}, false
	}
	child, ok := c.n.children[token]
	return Cursor[V]{child}, ok
}

// Ascend moves the cursor to its parent, reporting whether a parent
// exists (the root has none).
func (c Cursor[V]) Ascend() (Cursor[V], bool) {
	if c.n == nil || c.n.parent == nil {
		return Cursor[V]{}, false
	}
	return Cursor[V]{c.n.parent}, true
}

func (c Cursor[V]) firstChild() (Cursor[V], bool) {
	keys := c.n.sortedChildKeys()
	if len(keys) == 0 {
		return Cursor[V]{}, false
	}
	return Cursor[V]{c.n.children[keys[0]]}, true
}

// AdvanceToNextNodeInLevel moves the cursor to its next sibling in
// lexicographic token order, without descending into children.
func (c Cursor[V]) AdvanceToNextNodeInLevel() (Cursor[V], bool) {
	if c.n == nil || c.n.parent == nil {
		return Cursor[V]{}, false
	}
	keys := c.n.parent.sortedChildKeys()
	idx := sort.SearchStrings(keys, c.n.token)
	if idx >= len(keys) || keys[idx] != c.n.token || idx+1 >= len(keys) {
		return Cursor[V]{}, false
	}
	return Cursor[V]{c.n.parent.children[keys[idx+1]]}, true
}

// AdvanceDepthFirstToNextNode moves the cursor to the next node in
// pre-order, visiting every node (value-bearing or purely structural).
func (c Cursor[V]) AdvanceDepthFirstToNextNode() (Cursor[V], bool) {
	if first, ok := c.firstChild(); ok {
		return first, true
	}
	cur := c
	for {
		if sib, ok := cur.AdvanceToNextNodeInLevel(); ok {
			return sib, true
		}
		parent, ok := cur.Ascend()
		if !ok {
			return Cursor[V]{}, false
		}
		cur = parent
	}
}

// AdvanceDepthFirstToNextElement moves the cursor through pre-order
// nodes, skipping structural nodes, until a value-bearing node is
// reached or traversal is exhausted.
func (c Cursor[V]) AdvanceDepthFirstToNextElement() (Cursor[V], bool) {
	cur, ok := c.AdvanceDepthFirstToNextNode()
	for ok && !cur.HasValue() {
		cur, ok = cur.AdvanceDepthFirstToNextNode()
	}
	return cur, ok
}

// SkipTo repositions the cursor to an arbitrary previously obtained
// cursor, used by callers that precomputed a traversal target (e.g. the
// wildcard matcher jumping between sibling branches).
func (c Cursor[V]) SkipTo(other Cursor[V]) Cursor[V] { return other }

// Begin returns a cursor at the first value-bearing node in lexicographic
// order, or an invalid cursor if the trie is empty.
func (t *Trie[V]) Begin() Cursor[V] {
	root := Cursor[V]{t.ensureRoot()}
	if root.HasValue() {
		return root
	}
	c, _ := root.AdvanceDepthFirstToNextElement()
	return c
}

// Entry pairs a token-sequence key with its stored value, used by
// enumeration methods that return complete result sets.
type Entry[V any] struct {
	Key   []string
	Value V
}

// Walk visits every stored entry in lexicographic key order.
func (t *Trie[V]) Walk(fn func(Entry[V])) {
	for c := t.Begin(); c.Valid(); {
		fn(Entry[V]{Key: c.Key(), Value: c.Value()})
		var ok bool
		c, ok = c.AdvanceDepthFirstToNextElement()
		if !ok {
			break
		}
	}
}

// WalkPrefixes visits, in ascending prefix-length order, every stored
// entry whose key is a token-prefix of topicTokens. This implements the
// broker's prefix-match index: a pattern stored at key P fires for a
// published topic T whenever P's tokens are a prefix of T's tokens,
// which is exactly the set of value-bearing nodes encountered while
// walking the trie one topic token at a time from the root.
func (t *Trie[V]) WalkPrefixes(topicTokens []string, fn func(Entry[V])) {
	n := t.ensureRoot()
	if n.hasValue {
		fn(Entry[V]{Key: nil, Value: n.value})
	}
	consumed := make([]string, 0, len(topicTokens))
	for _, tok := range topicTokens {
		child, ok := n.children[tok]
		if !ok {
			return
		}
		consumed = append(consumed, tok)
		n = child
		if n.hasValue {
			key := make([]string, len(consumed))
			copy(key, consumed)
			fn(Entry[V]{Key: key, Value: n.value})
		}
	}
}

// WildcardMatches returns every stored entry whose key has the same
// token count as keyTokens and whose every non-empty token equals the
// corresponding token of keyTokens, in lexicographic key order. This is
// the set described in spec.md §8 property 6.
func (t *Trie[V]) WildcardMatches(keyTokens []string) []Entry[V] {
	var results []Entry[V]
	wildcardMatch(t.Root(), keyTokens, 0, &results)
	return results
}

func wildcardMatch[V any](cur Cursor[V], keyTokens []string, depth int, results *[]Entry[V]) {
	if depth == len(keyTokens) {
		if cur.HasValue() {
			*results = append(*results, Entry[V]{Key: cur.Key(), Value: cur.Value()})
		}
		return
	}
	tok := keyTokens[depth]
	// Visit the wildcard branch before the literal branch: "" sorts
	// before any non-empty token, so this preserves lexicographic order
	// of the full pattern across the whole traversal.
	if child, ok := cur.Descend(""); ok {
		wildcardMatch(child, keyTokens, depth+1, results)
	}
	if tok != "" {
		if child, ok := cur.Descend(tok); ok {
			wildcardMatch(child, keyTokens, depth+1, results)
		}
	}
}

// Matcher is a restartable cursor over a wildcard match result set,
// matching the done()/key()/value()/next() contract from spec.md §4.5.
type Matcher[V any] struct {
	entries []Entry[V]
	pos     int
}

// NewMatcher builds a Matcher over every entry in the trie matching
// keyTokens under wildcard policy.
func (t *Trie[V]) NewMatcher(keyTokens []string) *Matcher[V] {
	return &Matcher[V]{entries: t.WildcardMatches(keyTokens)}
}

// Done reports whether the matcher has been exhausted.
func (m *Matcher[V]) Done() bool { return m.pos >= len(m.entries) }

// Key returns the pattern key of the current match.
func (m *Matcher[V]) Key() []string { return m.entries[m.pos].Key }

// Value returns the value of the current match.
func (m *Matcher[V]) Value() V { return m.entries[m.pos].Value }

// Next advances the matcher to the next match.
func (m *Matcher[V]) Next() { m.pos++ }
