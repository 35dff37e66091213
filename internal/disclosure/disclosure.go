// Package disclosure implements the realm's caller/publisher disclosure
// rule engine described in spec.md §4.6.
package disclosure

import "github.com/tenzoki/wampcore/internal/wampmsg"

// Rule is one of the six disclosure dispositions a realm or session
// override can hold for PUBLISH/CALL operations.
type Rule int

const (
	// Preset defers to the realm's configured rule; only meaningful as
	// a per-session override value, never as the realm's own rule.
	Preset Rule = iota
	// Originator passes through the message's own disclose_me option.
	Originator
	// Reveal always discloses the originator's identity.
	Reveal
	// Conceal always hides the originator's identity.
	Conceal
	// StrictReveal always discloses and rejects an explicit disclose_me.
	StrictReveal
	// StrictConceal always hides and rejects an explicit disclose_me.
	StrictConceal
)

func (r Rule) String() string {
	switch r {
	case Preset:
		return "preset"
	case Originator:
		return "originator"
	case Reveal:
		return "reveal"
	case Conceal:
		return "conceal"
	case StrictReveal:
		return "strictReveal"
	case StrictConceal:
		return "strictConceal"
	default:
		return "unknown"
	}
}

// Identity is the authenticated identity attached to a disclosed
// publisher/caller option set.
type Identity struct {
	SessionID uint64
	AuthID    string
	AuthRole  string
}

// Resolve applies the algorithm from spec.md §4.6 to one PUBLISH/CALL.
//
// realmRule is the realm's configured rule for this operation kind;
// sessionOverride is the originating session's own override, or Preset
// if it has none. discloseMe is the message's own disclose_me option.
//
// Resolve returns whether the operation is allowed and, if so, whether
// the originator's identity should be disclosed.
func Resolve(realmRule, sessionOverride Rule, discloseMe bool) (disclose bool, allowed bool) {
	effective := realmRule
	if sessionOverride != Preset {
		effective = sessionOverride
	}

	if (effective == StrictReveal || effective == StrictConceal) && discloseMe {
		return false, false
	}

	switch effective {
	case Reveal, StrictReveal:
		return true, true
	case Conceal, StrictConceal:
		return false, true
	case Originator:
		return discloseMe, true
	default:
		// Preset with no realm override configured behaves like
		// Originator: only disclose when explicitly requested.
		return discloseMe, true
	}
}

// ApplyIdentity copies the disclosed identity fields onto details under
// the given key prefix ("publisher"/"caller"), matching the EVENT and
// INVOCATION option names from spec.md §4.2/§4.3.
func ApplyIdentity(details wampmsg.Dict, prefix string, id Identity) {
	details[prefix] = id.SessionID
	if id.AuthID != "" {
		details[prefix+"_authid"] = id.AuthID
	}
	if id.AuthRole != "" {
		details[prefix+"_authrole"] = id.AuthRole
	}
}
