package session

import (
	"errors"
	"testing"

	"github.com/tenzoki/wampcore/internal/wampmsg"
)

func TestHappyPathTransitions(t *testing.T) {
	s := New(Config{})
	s.Connect()
	if s.State() != StateConnecting {
		t.Fatalf("want connecting, got %s", s.State())
	}
	s.HandshakeSucceeded()
	if s.State() != StateClosed {
		t.Fatalf("want closed, got %s", s.State())
	}
	s.BeginEstablishing("realm1")
	if s.State() != StateEstablishing || s.Realm() != "realm1" {
		t.Fatalf("want establishing/realm1, got %s/%s", s.State(), s.Realm())
	}
	s.Welcome(Identity{ID: 42, AuthRole: "anonymous"})
	if s.State() != StateEstablished {
		t.Fatalf("want established, got %s", s.State())
	}
	if s.ID() != 42 {
		t.Fatalf("want session id 42, got %d", s.ID())
	}
}

func TestChallengeResponseTransitions(t *testing.T) {
	s := New(Config{})
	s.Connect()
	s.HandshakeSucceeded()
	s.BeginEstablishing("realm1")
	s.BeginAuthenticating()
	if s.State() != StateAuthenticating {
		t.Fatalf("want authenticating, got %s", s.State())
	}
	if err := s.CheckInbound(wampmsg.KindAuthenticate); err != nil {
		t.Fatalf("AUTHENTICATE must be legal while authenticating: %v", err)
	}
	s.Welcome(Identity{ID: 7})
	if s.State() != StateEstablished {
		t.Fatalf("want established, got %s", s.State())
	}
}

func TestCheckInboundRejectsIllegalKind(t *testing.T) {
	s := New(Config{})
	s.Connect()
	s.HandshakeSucceeded()
	// In Closed, only HELLO is legal.
	if err := s.CheckInbound(wampmsg.KindHello); err != nil {
		t.Fatalf("HELLO must be legal in closed: %v", err)
	}
	err := s.CheckInbound(wampmsg.KindCall)
	if err == nil {
		t.Fatal("CALL must not be legal in closed")
	}
	if !errors.Is(err, wampmsg.ErrProtocolViolation) {
		t.Fatalf("violation must wrap ErrProtocolViolation, got %v", err)
	}
}

func TestFailClearsIdentity(t *testing.T) {
	s := New(Config{})
	s.Connect()
	s.HandshakeSucceeded()
	s.BeginEstablishing("realm1")
	s.Welcome(Identity{ID: 9, AuthRole: "user"})
	s.Fail("transport closed")
	if s.State() != StateFailed {
		t.Fatalf("want failed, got %s", s.State())
	}
	if s.ID() != 0 {
		t.Fatalf("id must be cleared on fail, got %d", s.ID())
	}
	if s.Identity().AuthRole != "" {
		t.Fatal("identity must be cleared on fail")
	}
}

func TestGoodbyeRoundTrip(t *testing.T) {
	s := New(Config{})
	s.Connect()
	s.HandshakeSucceeded()
	s.BeginEstablishing("realm1")
	s.Welcome(Identity{ID: 1})
	s.BeginShutdown()
	if s.State() != StateShuttingDown {
		t.Fatalf("want shuttingDown, got %s", s.State())
	}
	if err := s.CheckInbound(wampmsg.KindGoodbye); err != nil {
		t.Fatalf("GOODBYE must be legal while shutting down: %v", err)
	}
	s.Close()
	if s.State() != StateClosed {
		t.Fatalf("want closed, got %s", s.State())
	}
}

func TestDisabledIdleTimeoutReportsNoIncident(t *testing.T) {
	var got Incident
	s := New(Config{IdleTimeout: 0, Observer: func(i Incident) { got = i }})
	s.CheckIdle() // IdleTimeout disabled, must be a no-op.
	if got.Kind != "" {
		t.Fatal("disabled idle timeout must not report an incident")
	}
}
