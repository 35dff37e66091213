// Package broker implements the publish/subscribe dispatcher described
// in spec.md §4.2: three pattern-policy indices (exact, prefix,
// wildcard), eligibility filtering, and publisher disclosure.
//
// Grounded on original_source/cppwamp/include/cppwamp/internal/broker.hpp,
// replacing its three BrokerXxxTopicMap types with an exact-topic map
// plus two token tries (prefix and wildcard), and fixing the
// eligible-role check that the original compares against authId instead
// of authRole.
package broker

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/tenzoki/wampcore/internal/disclosure"
	"github.com/tenzoki/wampcore/internal/idgen"
	"github.com/tenzoki/wampcore/internal/trie"
	"github.com/tenzoki/wampcore/internal/uri"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// Subscriber is the broker's view of a session that can receive EVENTs.
// The broker holds subscribers by value-comparable key (SessionID) and
// never assumes the peer is still reachable: Send reports whether
// delivery could even be attempted, matching the "weak reference that
// may fail to upgrade" invariant from spec.md §4.1 applied to pub/sub.
type Subscriber interface {
	SessionID() uint64
	AuthID() string
	AuthRole() string
	Send(kind wampmsg.Kind, fields wampmsg.List) bool
}

// Subscription is one registered pattern: its id, owning subscriber, the
// raw URI and policy it was registered under, and the publish-side
// filters to apply to every matching PUBLISH.
type Subscription struct {
	ID       uint64
	URI      string
	Policy   uri.Policy
	Subscriber Subscriber

	ExcludeMe      bool
	ExcludedIDs    map[uint64]bool
	ExcludedAuthRoles map[string]bool
	EligibleIDs    map[uint64]bool
	EligibleAuthRoles map[string]bool
}

// isEligible applies this subscription's own exclusion/eligibility
// lists, taken from its SUBSCRIBE options, to the publisher of a
// publication: publisherID is checked against ExcludedIDs/EligibleIDs
// and authRole against ExcludedAuthRoles/EligibleAuthRoles. Exclusion
// or eligibility lists carried in a PUBLISH's options are not consulted.
// The original cppwamp implementation checks
// eligibleRoles_.count(authId); this compares against authRole.
func (s *Subscription) isEligible(publisherID uint64, authRole string) bool {
	if s.ExcludedIDs[publisherID] {
		return false
	}
	if len(s.ExcludedAuthRoles) > 0 && s.ExcludedAuthRoles[authRole] {
		return false
	}
	if len(s.EligibleIDs) > 0 && !s.EligibleIDs[publisherID] {
		return false
	}
	if len(s.EligibleAuthRoles) > 0 && !s.EligibleAuthRoles[authRole] {
		return false
	}
	return true
}

// Publication describes one PUBLISH to dispatch.
type Publication struct {
	Topic       string
	Args        wampmsg.List
	KwArgs      wampmsg.Dict
	PublisherID uint64
	PublisherAuthID   string
	PublisherAuthRole string
	DiscloseMe  bool
	// SessionOverride is the publishing session's own disclosure
	// override, or disclosure.Preset if it has none.
	SessionOverride disclosure.Rule
}

// Broker dispatches PUBLISH to every matching SUBSCRIBE across the three
// URI-matching policies. It is not safe for concurrent use from more
// than one goroutine; callers run it on the owning realm's strand.
type Broker struct {
	ids *idgen.Generator
	log zerolog.Logger

	exact    map[string]map[uint64]*Subscription
	prefix   *trie.Trie[map[uint64]*Subscription]
	wildcard *trie.Trie[map[uint64]*Subscription]

	byID map[uint64]*Subscription

	realmRule disclosure.Rule
}

// New creates an empty Broker. realmRule is the realm's configured
// publisher-disclosure rule (spec.md §4.6).
func New(ids *idgen.Generator, log zerolog.Logger, realmRule disclosure.Rule) *Broker {
	return &Broker{
		ids:       ids,
		log:       log,
		exact:     map[string]map[uint64]*Subscription{},
		prefix:    trie.New[map[uint64]*Subscription](),
		wildcard:  trie.New[map[uint64]*Subscription](),
		byID:      map[uint64]*Subscription{},
		realmRule: realmRule,
	}
}

// Subscribe registers sub under its URI and policy, reusing any existing
// subscription id for the same URI+policy so that repeat SUBSCRIBEs from
// different sessions share one SUBSCRIBED id, per spec.md §4.2.
func (b *Broker) Subscribe(sub *Subscription) uint64 {
	tokens := uri.Tokenize(sub.URI)

	switch sub.Policy {
	case uri.PolicyPrefix:
		group, ok := b.prefix.Find(tokens)
		if !ok {
			group = map[uint64]*Subscription{}
			sub.ID = b.ids.Next()
			group[sub.Subscriber.SessionID()] = sub
			b.prefix.Insert(tokens, group)
		} else {
			sub.ID = firstID(group)
			group[sub.Subscriber.SessionID()] = sub
		}
	case uri.PolicyWildcard:
		group, ok := b.wildcard.Find(tokens)
		if !ok {
			group = map[uint64]*Subscription{}
			sub.ID = b.ids.Next()
			group[sub.Subscriber.SessionID()] = sub
			b.wildcard.Insert(tokens, group)
		} else {
			sub.ID = firstID(group)
			group[sub.Subscriber.SessionID()] = sub
		}
	default:
		group, ok := b.exact[sub.URI]
		if !ok {
			group = map[uint64]*Subscription{}
			sub.ID = b.ids.Next()
			b.exact[sub.URI] = group
		} else {
			sub.ID = firstID(group)
		}
		group[sub.Subscriber.SessionID()] = sub
	}

	b.byID[sub.ID] = sub
	return sub.ID
}

func firstID(group map[uint64]*Subscription) uint64 {
	for _, s := range group {
		return s.ID
	}
	return 0
}

// Unsubscribe removes sessionID's registration under subscriptionID,
// reporting the subscription's URI once removed — spec.md §9 requires
// the return value be unified to "URI of the now-removed subscription"
// rather than a boolean, since a subscription id is shared by many
// sessions and the caller needs to know whether the *group* emptied.
func (b *Broker) Unsubscribe(sessionID, subscriptionID uint64) (topicURI string, removed bool) {
	sub, ok := b.byID[subscriptionID]
	if !ok {
		return "", false
	}
	tokens := uri.Tokenize(sub.URI)

	var group map[uint64]*Subscription
	switch sub.Policy {
	case uri.PolicyPrefix:
		group, _ = b.prefix.Find(tokens)
	case uri.PolicyWildcard:
		group, _ = b.wildcard.Find(tokens)
	default:
		group = b.exact[sub.URI]
	}
	if group == nil {
		return "", false
	}
	if _, present := group[sessionID]; !present {
		return "", false
	}
	delete(group, sessionID)

	if len(group) == 0 {
		switch sub.Policy {
		case uri.PolicyPrefix:
			b.prefix.Erase(tokens)
		case uri.PolicyWildcard:
			b.wildcard.Erase(tokens)
		default:
			delete(b.exact, sub.URI)
		}
		delete(b.byID, subscriptionID)
	}
	return sub.URI, true
}

// RemoveSubscriber drops every subscription belonging to sessionID,
// called when a session departs (spec.md §4.2's removeSubscriber
// sweep). It mirrors Unsubscribe's group/index bookkeeping across all
// three policies.
func (b *Broker) RemoveSubscriber(sessionID uint64) {
	for topicURI, group := range b.exact {
		sub, ok := group[sessionID]
		if !ok {
			continue
		}
		delete(group, sessionID)
		if len(group) == 0 {
			delete(b.exact, topicURI)
			delete(b.byID, sub.ID)
		}
	}
	removeFromTrie(b.prefix, sessionID, b.byID)
	removeFromTrie(b.wildcard, sessionID, b.byID)
}

func removeFromTrie(t *trie.Trie[map[uint64]*Subscription], sessionID uint64, byID map[uint64]*Subscription) {
	var empties [][]string
	t.Walk(func(e trie.Entry[map[uint64]*Subscription]) {
		if sub, ok := e.Value[sessionID]; ok {
			delete(e.Value, sessionID)
			if len(e.Value) == 0 {
				delete(byID, sub.ID)
				empties = append(empties, e.Key)
			}
		}
	})
	for _, key := range empties {
		t.Erase(key)
	}
}

// MatchedTopic carries the detail annotation EVENT messages need when a
// publication reached a subscriber through a prefix or wildcard match
// (spec.md §4.2/§4.4): the actual published topic, surfaced so the
// subscriber can tell which concrete topic fired.
type MatchedTopic struct {
	Sub   *Subscription
	Topic string
}

// Publish dispatches pub to every eligible matching subscription across
// all three policies and returns the publication id assigned to this
// PUBLISH (shared by every delivered EVENT, per spec.md §4.2) together
// with the set of (subscription, topic) pairs an EVENT was sent to, for
// the caller to turn into wire messages and access-log entries.
func (b *Broker) Publish(pub Publication) (publicationID uint64, delivered []MatchedTopic) {
	tokens := uri.Tokenize(pub.Topic)
	publicationID = b.ids.Next()
	var matches []MatchedTopic

	if group, ok := b.exact[pub.Topic]; ok {
		for _, sub := range sortedByID(group) {
			matches = append(matches, MatchedTopic{Sub: sub, Topic: pub.Topic})
		}
	}

	b.prefix.WalkPrefixes(tokens, func(e trie.Entry[map[uint64]*Subscription]) {
		for _, sub := range sortedByID(e.Value) {
			matches = append(matches, MatchedTopic{Sub: sub, Topic: pub.Topic})
		}
	})

	for _, e := range b.wildcard.WildcardMatches(tokens) {
		for _, sub := range sortedByID(e.Value) {
			matches = append(matches, MatchedTopic{Sub: sub, Topic: pub.Topic})
		}
	}

	disclose, allowed := disclosure.Resolve(b.realmRule, pub.SessionOverride, pub.DiscloseMe)
	if !allowed {
		return publicationID, nil
	}

	sent := matches[:0]
	for _, m := range matches {
		if m.Sub.ExcludeMe && m.Sub.Subscriber.SessionID() == pub.PublisherID {
			continue
		}
		if !m.Sub.isEligible(pub.PublisherID, pub.PublisherAuthRole) {
			continue
		}

		details := wampmsg.Dict{}
		if m.Sub.Policy != uri.PolicyExact {
			details["topic"] = m.Topic
		}
		if disclose {
			disclosure.ApplyIdentity(details, "publisher", disclosure.Identity{
				SessionID: pub.PublisherID,
				AuthID:    pub.PublisherAuthID,
				AuthRole:  pub.PublisherAuthRole,
			})
		}

		ev := wampmsg.Event{
			SubscriptionID: m.Sub.ID,
			PublicationID:  publicationID,
			Details:        details,
			Args:           pub.Args,
			KwArgs:         pub.KwArgs,
		}
		if m.Sub.Subscriber.Send(wampmsg.KindEvent, ev.ToArray()) {
			sent = append(sent, m)
		}
	}
	return publicationID, sent
}

func sortedByID(group map[uint64]*Subscription) []*Subscription {
	out := make([]*Subscription, 0, len(group))
	for _, s := range group {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subscriber.SessionID() < out[j].Subscriber.SessionID() })
	return out
}
