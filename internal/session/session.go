// Package session implements the SessionStateMachine from spec.md §4.1:
// it tracks a peer's lifecycle, validates that each inbound message is
// legal for the current state, and coordinates graceful shutdown and
// abort. The broker and dealer never see a session outside of
// Established state.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// State is one node of the session lifecycle graph in spec.md §4.1.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateClosed
	StateEstablishing
	StateAuthenticating
	StateEstablished
	StateShuttingDown
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateClosed:
		return "closed"
	case StateEstablishing:
		return "establishing"
	case StateAuthenticating:
		return "authenticating"
	case StateEstablished:
		return "established"
	case StateShuttingDown:
		return "shuttingDown"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// legalInbound lists, for each state, the message kinds a peer is
// allowed to send to the router. Anything else triggers ABORT with
// wamp.error.protocol_violation.
var legalInbound = map[State]map[wampmsg.Kind]bool{
	StateClosed: {
		wampmsg.KindHello: true,
	},
	StateAuthenticating: {
		wampmsg.KindAuthenticate: true,
	},
	StateEstablished: {
		wampmsg.KindSubscribe:   true,
		wampmsg.KindUnsubscribe: true,
		wampmsg.KindPublish:     true,
		wampmsg.KindCall:        true,
		wampmsg.KindCancel:      true,
		wampmsg.KindRegister:    true,
		wampmsg.KindUnregister:  true,
		wampmsg.KindYield:       true,
		wampmsg.KindError:       true,
		wampmsg.KindGoodbye:     true,
	},
	StateShuttingDown: {
		wampmsg.KindGoodbye: true,
	},
}

// Identity is the authenticated identity welcomed into a session.
type Identity struct {
	ID       uint64
	AuthID   string
	AuthRole string
	Method   string
	Provider string
}

// Incident is an observable event the session reports without treating
// it as a protocol error, e.g. idle timeouts and handler exceptions
// (spec.md §4.1, §7).
type Incident struct {
	Kind    string
	Message string
	At      time.Time
}

// Observer receives incidents as they occur. Implementations must not
// block; the realm typically just forwards to a logger/metrics sink.
type Observer func(Incident)

// Config holds the per-session timeout settings from spec.md §4.1.
type Config struct {
	CommandTimeout time.Duration
	IdleTimeout    time.Duration
	Observer       Observer
	Logger         zerolog.Logger
}

// Session is one peer's routing-core view: its lifecycle state, its
// welcomed identity (once Established), and the timers that drive idle
// and command-timeout incidents. It does not own the transport or
// codec; those are collaborators supplied by the embedder.
type Session struct {
	mu    sync.Mutex
	id    uint64
	realm string
	state State

	identity Identity
	welcomed bool

	cfg          Config
	lastActivity time.Time
}

// New creates a Session in StateDisconnected.
func New(cfg Config) *Session {
	return &Session{state: StateDisconnected, cfg: cfg, lastActivity: time.Now()}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the welcomed session id, or 0 if not yet Established.
func (s *Session) ID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Identity returns the welcomed identity. Only meaningful in
// StateEstablished, per the invariant in spec.md §3 that an identity
// exists only in Established.
func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Realm returns the realm name this session joined, set at Establishing.
func (s *Session) Realm() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realm
}

// ViolationError is returned by CheckInbound when a message kind is not
// legal for the current state; it wraps wampmsg.ErrProtocolViolation
// with a hint naming the offending kind, matching the ABORT hint format
// required by spec.md §8 scenario 6.
type ViolationError struct {
	Kind  wampmsg.Kind
	State State
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("message kind %s is not legal in state %s", e.Kind, e.State)
}

func (e *ViolationError) Unwrap() error { return wampmsg.ErrProtocolViolation }

// CheckInbound reports whether kind is legal to receive in the current
// state. It does not mutate the state machine; callers that get an
// error are expected to call Fail to transition to StateFailed and emit
// ABORT.
func (s *Session) CheckInbound(kind wampmsg.Kind) error {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	if legalInbound[st][kind] {
		return nil
	}
	return &ViolationError{Kind: kind, State: st}
}

// Connect transitions Disconnected -> Connecting.
func (s *Session) Connect() {
	s.transition(StateDisconnected, StateConnecting)
}

// HandshakeSucceeded transitions Connecting -> Closed (transport ready,
// no WAMP session established yet).
func (s *Session) HandshakeSucceeded() {
	s.transition(StateConnecting, StateClosed)
}

// BeginEstablishing transitions Closed -> Establishing on an outbound or
// inbound HELLO with a known realm, and records the realm name.
func (s *Session) BeginEstablishing(realm string) {
	s.mu.Lock()
	s.realm = realm
	s.mu.Unlock()
	s.transition(StateClosed, StateEstablishing)
}

// BeginAuthenticating transitions Establishing -> Authenticating when
// the authenticator issues a CHALLENGE.
func (s *Session) BeginAuthenticating() {
	s.transition(StateEstablishing, StateAuthenticating)
}

// ContinueEstablishing transitions Authenticating -> Establishing after
// each AUTHENTICATE reply that still needs another CHALLENGE round.
func (s *Session) ContinueEstablishing() {
	s.transition(StateAuthenticating, StateEstablishing)
}

// Welcome transitions Establishing/Authenticating -> Established,
// recording the welcomed identity. This is the only place an identity
// becomes visible, and the only way out of Establishing/Authenticating
// besides Abort, matching the invariant in spec.md §3.
func (s *Session) Welcome(id Identity) {
	s.mu.Lock()
	if s.state != StateEstablishing && s.state != StateAuthenticating {
		s.mu.Unlock()
		return
	}
	s.state = StateEstablished
	s.id = id.ID
	s.identity = id
	s.welcomed = true
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// BeginShutdown transitions Established -> ShuttingDown on an outbound
// GOODBYE.
func (s *Session) BeginShutdown() {
	s.transition(StateEstablished, StateShuttingDown)
}

// Close transitions ShuttingDown -> Closed on the peer's GOODBYE reply,
// or Establishing/Authenticating -> Closed on ABORT.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateShuttingDown || s.state == StateEstablishing || s.state == StateAuthenticating {
		s.state = StateClosed
		s.clearIdentityLocked()
	}
}

// Fail transitions any state to StateFailed, clearing the welcomed
// identity. Used for transport errors, timeouts, unsupported codecs,
// and protocol violations (spec.md §4.1).
func (s *Session) Fail(reason string) {
	s.mu.Lock()
	s.state = StateFailed
	s.clearIdentityLocked()
	s.mu.Unlock()
	s.report(Incident{Kind: "fail", Message: reason, At: time.Now()})
}

func (s *Session) clearIdentityLocked() {
	s.id = 0
	s.identity = Identity{}
	s.welcomed = false
}

func (s *Session) transition(from, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return
	}
	s.state = to
}

// Touch records activity for idle-timeout accounting.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IdleFor reports how long the session has gone without activity.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// CheckIdle reports an "idleTimeout" incident if the configured idle
// interval has elapsed, without aborting the session (spec.md §4.1: "does
// not abort by default").
func (s *Session) CheckIdle() {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	if s.IdleFor() < s.cfg.IdleTimeout {
		return
	}
	s.report(Incident{Kind: "idleTimeout", Message: "no activity within configured interval", At: time.Now()})
}

func (s *Session) report(i Incident) {
	if s.cfg.Observer != nil {
		s.cfg.Observer(i)
	}
}
