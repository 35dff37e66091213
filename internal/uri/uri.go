// Package uri implements URI tokenization and pattern matching for WAMP
// topic and procedure URIs. A URI is a dot-separated sequence of tokens;
// syntax validity (character classes, loose-vs-strict emptiness rules) is
// delegated to an external Validator, since the router only ever needs to
// split, join, and compare token sequences.
package uri

import "strings"

// Separator is the token delimiter used by all WAMP URIs.
const Separator = "."

// Policy identifies how a subscribed/registered pattern is matched against
// a concrete published/called URI.
type Policy int

const (
	// PolicyUnknown is the zero value and never a valid subscription policy.
	PolicyUnknown Policy = iota
	// PolicyExact requires the pattern to equal the topic character-for-character.
	PolicyExact
	// PolicyPrefix requires the topic's tokens to begin with the pattern's tokens.
	PolicyPrefix
	// PolicyWildcard requires equal token count, with empty pattern tokens
	// matching any corresponding topic token.
	PolicyWildcard
)

func (p Policy) String() string {
	switch p {
	case PolicyExact:
		return "exact"
	case PolicyPrefix:
		return "prefix"
	case PolicyWildcard:
		return "wildcard"
	default:
		return "unknown"
	}
}

// AllowsWildcards reports whether the policy's URI validation should accept
// empty tokens. Only exact-match URIs reject them.
func (p Policy) AllowsWildcards() bool {
	return p != PolicyExact
}

// Tokenize splits a URI into its dot-separated tokens. An empty string
// tokenizes to a single empty token, matching the convention used
// throughout the trie and wildcard matcher.
func Tokenize(u string) []string {
	return strings.Split(u, Separator)
}

// Untokenize re-joins tokens into a URI string. Untokenize(Tokenize(u)) == u
// for every valid URI, satisfying the round-trip law in spec.md §8.
func Untokenize(tokens []string) string {
	return strings.Join(tokens, Separator)
}

// Validator is the external collaborator that decides whether a URI is
// syntactically legal. allowWildcards is true for prefix/wildcard patterns,
// false for exact patterns, registrations, and published topics.
type Validator func(u string, allowWildcards bool) bool

// AcceptAll is a permissive Validator useful for tests and embedders that
// defer URI syntax enforcement elsewhere.
func AcceptAll(string, bool) bool { return true }

// HasPrefixTokens reports whether the token sequence of pattern is a prefix
// of the token sequence of topic, used by PolicyPrefix matching.
func HasPrefixTokens(patternTokens, topicTokens []string) bool {
	if len(patternTokens) > len(topicTokens) {
		return false
	}
	for i, tok := range patternTokens {
		if tok != topicTokens[i] {
			return false
		}
	}
	return true
}

// MatchesWildcard reports whether patternTokens matches topicTokens under
// wildcard policy: equal length, and every non-empty pattern token equals
// the corresponding topic token.
func MatchesWildcard(patternTokens, topicTokens []string) bool {
	if len(patternTokens) != len(topicTokens) {
		return false
	}
	for i, tok := range patternTokens {
		if tok != "" && tok != topicTokens[i] {
			return false
		}
	}
	return true
}
