// Package realm wires one Broker, one Dealer, and the set of sessions
// joined to a realm into a single strand: every operation runs on one
// goroutine so the broker and dealer never need their own locking, per
// the single-threaded "strand" execution model in spec.md §4.
//
// The run loop pattern is grounded on the accept/dispatch loop in
// tenzoki-agen/code/cellorg/internal/broker/service.go, generalized from
// a per-connection goroutine plus shared-map-with-mutex into a single
// worker goroutine draining a command channel, which is the idiomatic
// Go shape for cppwamp's boost::asio::strand.
package realm

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenzoki/wampcore/internal/broker"
	"github.com/tenzoki/wampcore/internal/dealer"
	"github.com/tenzoki/wampcore/internal/disclosure"
	"github.com/tenzoki/wampcore/internal/idgen"
	"github.com/tenzoki/wampcore/internal/metrics"
	"github.com/tenzoki/wampcore/internal/session"
	"github.com/tenzoki/wampcore/internal/uri"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// Peer is the transport-facing session a realm routes for. It satisfies
// both broker.Subscriber and dealer.Peer, which share the same method
// set by design: a realm member is always both a potential subscriber
// and a potential caller/callee.
type Peer interface {
	SessionID() uint64
	AuthID() string
	AuthRole() string
	Send(kind wampmsg.Kind, fields wampmsg.List) bool
}

// DisclosureRules is the realm's configured default for PUBLISH and
// CALL disclosure, per spec.md §4.6.
type DisclosureRules struct {
	Publisher disclosure.Rule
	Caller    disclosure.Rule
}

// Config configures a Realm at construction.
type Config struct {
	Name           string
	Disclosure     DisclosureRules
	URIValidator   uri.Validator
	Logger         zerolog.Logger
	CommandTimeout time.Duration
	IdleTimeout    time.Duration
	// Metrics is optional; a nil value disables metric updates.
	Metrics *metrics.Realm
}

// Realm owns the broker, dealer, and session table for one WAMP realm
// and serializes every operation through a single strand goroutine.
type Realm struct {
	name string
	log  zerolog.Logger

	broker *broker.Broker
	dealer *dealer.Dealer

	uriValidator uri.Validator

	sessionIDs *idgen.Generator
	sessions   map[uint64]*session.Session
	peers      map[uint64]Peer
	overrides  map[uint64]DisclosureRules

	cmdCh   chan func()
	closeCh chan struct{}

	metrics        *metrics.Realm
	commandTimeout time.Duration
	idleTimeout    time.Duration
}

// New creates a Realm and starts its strand goroutine.
func New(cfg Config) *Realm {
	ids := idgen.New()
	regIDs := idgen.New()
	validator := cfg.URIValidator
	if validator == nil {
		validator = uri.AcceptAll
	}

	r := &Realm{
		name:         cfg.Name,
		log:          cfg.Logger,
		uriValidator: validator,
		sessionIDs:   idgen.New(),
		sessions:     map[uint64]*session.Session{},
		peers:        map[uint64]Peer{},
		overrides:    map[uint64]DisclosureRules{},
		cmdCh:        make(chan func(), 256),
		closeCh:      make(chan struct{}),
		metrics:        cfg.Metrics,
		commandTimeout: cfg.CommandTimeout,
		idleTimeout:    cfg.IdleTimeout,
	}
	r.broker = broker.New(ids, cfg.Logger, cfg.Disclosure.Publisher)
	r.dealer = dealer.New(ids, regIDs, cfg.Logger, cfg.Disclosure.Caller)
	r.dealer.SetScheduler(r.Do)
	go r.run()
	return r
}

func (r *Realm) run() {
	for {
		select {
		case fn := <-r.cmdCh:
			fn()
		case <-r.closeCh:
			return
		}
	}
}

// Do runs fn on the realm's strand and blocks until it completes. Every
// exported Realm method that reads or changes routing state is
// implemented in terms of Do, so callers never need to reason about the
// strand directly; Close, Name, SessionDefaults and RecordViolation do
// not touch routing state and do not use it.
func (r *Realm) Do(fn func()) {
	done := make(chan struct{})
	r.cmdCh <- func() {
		fn()
		close(done)
	}
	<-done
}

// Close stops the strand goroutine. Pending commands already queued
// still run; no new ones should be submitted afterwards.
func (r *Realm) Close() {
	close(r.closeCh)
}

// Name returns the realm's name.
func (r *Realm) Name() string { return r.name }

// SessionDefaults returns the command/idle timeouts configured for this
// realm, for a listener to apply when constructing the session.Config
// for a connection once its HELLO has named this realm.
func (r *Realm) SessionDefaults() (commandTimeout, idleTimeout time.Duration) {
	return r.commandTimeout, r.idleTimeout
}

// RecordViolation increments this realm's protocol-violation counter. A
// listener calls it when it aborts a session that has joined this realm
// for sending an illegal message; a session aborted before joining is
// not counted by any realm.
func (r *Realm) RecordViolation() {
	if r.metrics != nil {
		r.metrics.ViolationsTotal.Inc()
	}
}

// Join admits peer to the realm, assigning it a fresh session id and
// the realm's default disclosure rules. It returns the assigned id.
func (r *Realm) Join(peer Peer) uint64 {
	var id uint64
	r.Do(func() {
		id = r.sessionIDs.Next()
		r.peers[id] = peer
		if r.metrics != nil {
			r.metrics.Sessions.Inc()
		}
	})
	return id
}

// SetSessionOverride installs a per-session disclosure override for
// sessionID, used when a session's HELLO.Details carries its own
// disclosure preference (spec.md §4.6).
func (r *Realm) SetSessionOverride(sessionID uint64, rules DisclosureRules) {
	r.Do(func() { r.overrides[sessionID] = rules })
}

// Leave removes sessionID from the realm, sweeping its subscriptions,
// registrations, and in-flight calls.
func (r *Realm) Leave(sessionID uint64) {
	r.Do(func() {
		r.broker.RemoveSubscriber(sessionID)
		jobsRemoved := r.dealer.RemoveCallee(sessionID)
		delete(r.peers, sessionID)
		delete(r.overrides, sessionID)
		delete(r.sessions, sessionID)
		if r.metrics != nil {
			r.metrics.Sessions.Dec()
			for i := 0; i < jobsRemoved; i++ {
				r.metrics.InflightCalls.Dec()
			}
		}
	})
}

func (r *Realm) disclosureFor(sessionID uint64) DisclosureRules {
	if o, ok := r.overrides[sessionID]; ok {
		return o
	}
	return DisclosureRules{}
}

// SubscribeRequest mirrors a decoded SUBSCRIBE's fields the realm needs.
type SubscribeRequest struct {
	SessionID         uint64
	Topic             string
	Policy            uri.Policy
	ExcludeMe         bool
	ExcludedIDs       map[uint64]bool
	ExcludedAuthRoles map[string]bool
	EligibleIDs       map[uint64]bool
	EligibleAuthRoles map[string]bool
}

// Subscribe registers req on the broker and returns the subscription id.
func (r *Realm) Subscribe(req SubscribeRequest) (uint64, error) {
	if !r.uriValidator(req.Topic, req.Policy.AllowsWildcards()) {
		return 0, wampmsg.ErrInvalidURI
	}
	var id uint64
	var err error
	r.Do(func() {
		peer, ok := r.peers[req.SessionID]
		if !ok {
			err = fmt.Errorf("unknown session %d", req.SessionID)
			return
		}
		id = r.broker.Subscribe(&broker.Subscription{
			URI:               req.Topic,
			Policy:            req.Policy,
			Subscriber:        peer,
			ExcludeMe:         req.ExcludeMe,
			ExcludedIDs:       req.ExcludedIDs,
			ExcludedAuthRoles: req.ExcludedAuthRoles,
			EligibleIDs:       req.EligibleIDs,
			EligibleAuthRoles: req.EligibleAuthRoles,
		})
		if r.metrics != nil {
			r.metrics.Subscriptions.Inc()
		}
	})
	return id, err
}

// Unsubscribe removes sessionID's registration under subscriptionID.
func (r *Realm) Unsubscribe(sessionID, subscriptionID uint64) (string, bool) {
	var topicURI string
	var removed bool
	r.Do(func() {
		topicURI, removed = r.broker.Unsubscribe(sessionID, subscriptionID)
		if removed && r.metrics != nil {
			r.metrics.Subscriptions.Dec()
		}
	})
	return topicURI, removed
}

// PublishRequest mirrors a decoded PUBLISH's fields the realm needs.
type PublishRequest struct {
	SessionID  uint64
	Topic      string
	Args       wampmsg.List
	KwArgs     wampmsg.Dict
	DiscloseMe bool
}

// Publish dispatches req through the broker and returns the assigned
// publication id.
func (r *Realm) Publish(req PublishRequest) (uint64, error) {
	if !r.uriValidator(req.Topic, false) {
		return 0, wampmsg.ErrInvalidURI
	}
	var publicationID uint64
	var err error
	r.Do(func() {
		peer, ok := r.peers[req.SessionID]
		if !ok {
			err = fmt.Errorf("unknown session %d", req.SessionID)
			return
		}
		publicationID, _ = r.broker.Publish(broker.Publication{
			Topic:             req.Topic,
			Args:              req.Args,
			KwArgs:            req.KwArgs,
			PublisherID:       req.SessionID,
			PublisherAuthID:   peer.AuthID(),
			PublisherAuthRole: peer.AuthRole(),
			DiscloseMe:        req.DiscloseMe,
			SessionOverride:   r.disclosureFor(req.SessionID).Publisher,
		})
		if r.metrics != nil {
			r.metrics.PublicationsTotal.Inc()
		}
	})
	return publicationID, err
}

// Register claims a procedure URI for sessionID. The wamp.session.*
// meta-procedure URIs are reserved for the realm itself (see metaapi.go)
// and can never be claimed by a callee.
func (r *Realm) Register(sessionID uint64, procedureURI string) (uint64, error) {
	if !r.uriValidator(procedureURI, false) {
		return 0, wampmsg.ErrInvalidURI
	}
	if isMetaProcedure(procedureURI) {
		return 0, wampmsg.ErrProcedureAlreadyExists
	}
	var id uint64
	var err error
	r.Do(func() {
		peer, ok := r.peers[sessionID]
		if !ok {
			err = fmt.Errorf("unknown session %d", sessionID)
			return
		}
		id, err = r.dealer.Register(peer, procedureURI)
		if err == nil && r.metrics != nil {
			r.metrics.Registrations.Inc()
		}
	})
	return id, err
}

// Unregister releases sessionID's registration.
func (r *Realm) Unregister(sessionID, registrationID uint64) (string, bool) {
	var uriStr string
	var removed bool
	r.Do(func() {
		peer, ok := r.peers[sessionID]
		if !ok {
			return
		}
		uriStr, removed = r.dealer.Unregister(peer, registrationID)
		if removed && r.metrics != nil {
			r.metrics.Registrations.Dec()
		}
	})
	return uriStr, removed
}

// CallRequest mirrors a decoded CALL's fields the realm needs.
type CallRequest struct {
	SessionID  uint64
	RequestID  uint64
	Procedure  string
	Args       wampmsg.List
	KwArgs     wampmsg.Dict
	Timeout    time.Duration
	DiscloseMe bool
}

// Call dispatches req through the dealer.
func (r *Realm) Call(req CallRequest) error {
	if !r.uriValidator(req.Procedure, false) {
		return wampmsg.ErrInvalidURI
	}
	var err error
	r.Do(func() {
		peer, ok := r.peers[req.SessionID]
		if !ok {
			err = fmt.Errorf("unknown session %d", req.SessionID)
			return
		}
		if r.handleMetaCall(peer, req) {
			if r.metrics != nil {
				r.metrics.InvocationsTotal.Inc()
			}
			return
		}
		err = r.dealer.Invoke(peer, dealer.Call{
			RequestID:       req.RequestID,
			Procedure:       req.Procedure,
			Args:            req.Args,
			KwArgs:          req.KwArgs,
			Timeout:         req.Timeout,
			CallerID:        req.SessionID,
			CallerAuthID:    peer.AuthID(),
			CallerAuthRole:  peer.AuthRole(),
			DiscloseMe:      req.DiscloseMe,
			SessionOverride: r.disclosureFor(req.SessionID).Caller,
		})
		if err == nil && r.metrics != nil {
			r.metrics.InvocationsTotal.Inc()
			r.metrics.InflightCalls.Inc()
		}
	})
	return err
}

// CancelCall requests cancellation of sessionID's outstanding CALL. The
// InflightCalls gauge is only decremented here when the job is erased
// immediately (killNoWait); kill and skip leave the job outstanding
// until the callee's eventual YIELD/ERROR decrements it exactly once,
// so CancelCall must never double-count that completion.
func (r *Realm) CancelCall(sessionID, requestID uint64, mode wampmsg.CancelMode) bool {
	var found bool
	r.Do(func() {
		peer, ok := r.peers[sessionID]
		if !ok {
			return
		}
		var erased bool
		found, erased = r.dealer.CancelCall(peer, requestID, mode)
		if erased && r.metrics != nil {
			r.metrics.InflightCalls.Dec()
		}
	})
	return found
}

// YieldResult delivers a callee's successful reply.
func (r *Realm) YieldResult(sessionID, requestID uint64, args wampmsg.List, kwArgs wampmsg.Dict) {
	r.Do(func() {
		peer, ok := r.peers[sessionID]
		if !ok {
			return
		}
		r.dealer.YieldResult(peer, requestID, args, kwArgs)
		if r.metrics != nil {
			r.metrics.InflightCalls.Dec()
		}
	})
}

// YieldError delivers a callee's ERROR reply.
func (r *Realm) YieldError(sessionID, requestID uint64, reason string, args wampmsg.List, kwArgs wampmsg.Dict) {
	r.Do(func() {
		peer, ok := r.peers[sessionID]
		if !ok {
			return
		}
		r.dealer.YieldError(peer, requestID, reason, args, kwArgs)
		if r.metrics != nil {
			r.metrics.InflightCalls.Dec()
		}
	})
}
