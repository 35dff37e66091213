package realm

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tenzoki/wampcore/internal/disclosure"
	"github.com/tenzoki/wampcore/internal/metrics"
	"github.com/tenzoki/wampcore/internal/uri"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

type fakePeer struct {
	id       uint64
	authID   string
	authRole string
	received []wampmsg.List
}

func (f *fakePeer) SessionID() uint64 { return f.id }
func (f *fakePeer) AuthID() string    { return f.authID }
func (f *fakePeer) AuthRole() string  { return f.authRole }
func (f *fakePeer) Send(kind wampmsg.Kind, fields wampmsg.List) bool {
	f.received = append(f.received, fields)
	return true
}

func newRealm() *Realm {
	return New(Config{Name: "test", Logger: zerolog.Nop()})
}

func TestJoinPublishSubscribe(t *testing.T) {
	r := newRealm()
	defer r.Close()

	publisher := &fakePeer{}
	subscriber := &fakePeer{}
	pubID := r.Join(publisher)
	publisher.id = pubID
	subID := r.Join(subscriber)
	subscriber.id = subID

	_, err := r.Subscribe(SubscribeRequest{SessionID: subID, Topic: "com.example.topic", Policy: uri.PolicyExact})
	if err != nil {
		t.Fatalf("subscribe must succeed: %v", err)
	}

	if _, err := r.Publish(PublishRequest{SessionID: pubID, Topic: "com.example.topic"}); err != nil {
		t.Fatalf("publish must succeed: %v", err)
	}

	if len(subscriber.received) != 1 {
		t.Fatalf("subscriber must receive exactly one event, got %d", len(subscriber.received))
	}
}

func TestLeaveSweepsSubscriptions(t *testing.T) {
	r := newRealm()
	defer r.Close()

	subscriber := &fakePeer{}
	subID := r.Join(subscriber)
	subscriber.id = subID
	r.Subscribe(SubscribeRequest{SessionID: subID, Topic: "a.b", Policy: uri.PolicyExact})

	r.Leave(subID)

	publisher := &fakePeer{}
	pubID := r.Join(publisher)
	publisher.id = pubID
	if _, err := r.Publish(PublishRequest{SessionID: pubID, Topic: "a.b"}); err != nil {
		t.Fatalf("publish must succeed: %v", err)
	}
	if len(subscriber.received) != 0 {
		t.Fatal("departed session must not receive further events")
	}
}

func TestRegisterCallYield(t *testing.T) {
	r := newRealm()
	defer r.Close()

	callee := &fakePeer{}
	caller := &fakePeer{}
	calleeID := r.Join(callee)
	callee.id = calleeID
	callerID := r.Join(caller)
	caller.id = callerID

	if _, err := r.Register(calleeID, "com.example.add"); err != nil {
		t.Fatalf("register must succeed: %v", err)
	}

	if err := r.Call(CallRequest{SessionID: callerID, RequestID: 1, Procedure: "com.example.add"}); err != nil {
		t.Fatalf("call must succeed: %v", err)
	}
	if len(callee.received) != 1 {
		t.Fatalf("callee must receive exactly one invocation, got %d", len(callee.received))
	}

	invocationRequestID := callee.received[0][1].(uint64)
	r.YieldResult(calleeID, invocationRequestID, wampmsg.List{42}, nil)
	if len(caller.received) != 1 {
		t.Fatalf("caller must receive exactly one result, got %d", len(caller.received))
	}
}

func TestSessionOverrideAppliesToPublish(t *testing.T) {
	r := New(Config{
		Name:       "test",
		Logger:     zerolog.Nop(),
		Disclosure: DisclosureRules{Publisher: disclosure.Conceal},
	})
	defer r.Close()

	publisher := &fakePeer{authID: "alice", authRole: "user"}
	subscriber := &fakePeer{}
	pubID := r.Join(publisher)
	publisher.id = pubID
	subID := r.Join(subscriber)
	subscriber.id = subID
	r.Subscribe(SubscribeRequest{SessionID: subID, Topic: "a.b", Policy: uri.PolicyExact})

	r.SetSessionOverride(pubID, DisclosureRules{Publisher: disclosure.Reveal})
	r.Publish(PublishRequest{SessionID: pubID, Topic: "a.b", DiscloseMe: true})

	details := subscriber.received[0][3].(wampmsg.Dict)
	if details["publisher"] != pubID {
		t.Fatal("session override Reveal must win over realm rule Conceal")
	}
}

// TestInflightCallsNotDoubleDecrementedOnKillThenYield covers a call
// cancelled with CancelMode=kill: CancelCall interrupts the callee but
// sends the caller nothing and leaves the job outstanding, so
// InflightCalls must only be decremented once, when the callee's
// later YIELD actually completes it.
func TestInflightCallsNotDoubleDecrementedOnKillThenYield(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(Config{Name: "test", Logger: zerolog.Nop(), Metrics: metrics.NewRealm(reg, "test")})
	defer r.Close()

	callee := &fakePeer{}
	caller := &fakePeer{}
	calleeID := r.Join(callee)
	callee.id = calleeID
	callerID := r.Join(caller)
	caller.id = callerID
	r.Register(calleeID, "com.example.slow")

	if err := r.Call(CallRequest{SessionID: callerID, RequestID: 1, Procedure: "com.example.slow"}); err != nil {
		t.Fatalf("call must succeed: %v", err)
	}
	if got := testutil.ToFloat64(r.metrics.InflightCalls); got != 1 {
		t.Fatalf("want InflightCalls 1 after CALL, got %v", got)
	}

	r.CancelCall(callerID, 1, wampmsg.CancelModeKill)
	if got := testutil.ToFloat64(r.metrics.InflightCalls); got != 1 {
		t.Fatalf("want InflightCalls still 1 after kill (job outstanding), got %v", got)
	}

	invocationRequestID := callee.received[0][1].(uint64)
	r.YieldResult(calleeID, invocationRequestID, wampmsg.List{1}, nil)
	if got := testutil.ToFloat64(r.metrics.InflightCalls); got != 0 {
		t.Fatalf("want InflightCalls 0 after the callee's YIELD completes the job, got %v", got)
	}
}

// TestInflightCallsDecrementedOnCalleeDeparture covers the departure
// path: a callee leaving mid-call never goes through cancelJob, so
// RemoveCallee must report the job count itself for Leave to decrement
// InflightCalls by.
func TestInflightCallsDecrementedOnCalleeDeparture(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(Config{Name: "test", Logger: zerolog.Nop(), Metrics: metrics.NewRealm(reg, "test")})
	defer r.Close()

	callee := &fakePeer{}
	caller := &fakePeer{}
	calleeID := r.Join(callee)
	callee.id = calleeID
	callerID := r.Join(caller)
	caller.id = callerID
	r.Register(calleeID, "com.example.slow")

	if err := r.Call(CallRequest{SessionID: callerID, RequestID: 1, Procedure: "com.example.slow"}); err != nil {
		t.Fatalf("call must succeed: %v", err)
	}
	if got := testutil.ToFloat64(r.metrics.InflightCalls); got != 1 {
		t.Fatalf("want InflightCalls 1 after CALL, got %v", got)
	}

	r.Leave(calleeID)
	if got := testutil.ToFloat64(r.metrics.InflightCalls); got != 0 {
		t.Fatalf("want InflightCalls 0 after the callee departs mid-call, got %v", got)
	}
}

func TestMetaSessionCountAndList(t *testing.T) {
	r := newRealm()
	defer r.Close()

	alice := &fakePeer{authRole: "user"}
	bob := &fakePeer{authRole: "admin"}
	aliceID := r.Join(alice)
	alice.id = aliceID
	bobID := r.Join(bob)
	bob.id = bobID

	caller := &fakePeer{}
	callerID := r.Join(caller)
	caller.id = callerID

	if err := r.Call(CallRequest{SessionID: callerID, RequestID: 1, Procedure: MetaSessionCount}); err != nil {
		t.Fatalf("meta call must succeed: %v", err)
	}
	if len(caller.received) != 1 {
		t.Fatalf("caller must receive exactly one RESULT, got %d", len(caller.received))
	}
	result := caller.received[0]
	if result[0] != int(wampmsg.KindResult) {
		t.Fatalf("want RESULT, got %v", result)
	}
	if count := result[3].(wampmsg.List)[0]; count != 3 {
		t.Fatalf("want session count 3, got %v", count)
	}

	if err := r.Call(CallRequest{SessionID: callerID, RequestID: 2, Procedure: MetaSessionList}); err != nil {
		t.Fatalf("meta call must succeed: %v", err)
	}
	ids := caller.received[1][3].(wampmsg.List)[0].(wampmsg.List)
	if len(ids) != 3 {
		t.Fatalf("want 3 session ids, got %v", ids)
	}
}

func TestMetaSessionGet(t *testing.T) {
	r := newRealm()
	defer r.Close()

	target := &fakePeer{authID: "alice", authRole: "user"}
	targetID := r.Join(target)
	target.id = targetID

	caller := &fakePeer{}
	callerID := r.Join(caller)
	caller.id = callerID

	if err := r.Call(CallRequest{SessionID: callerID, RequestID: 1, Procedure: MetaSessionGet, Args: wampmsg.List{targetID}}); err != nil {
		t.Fatalf("meta call must succeed: %v", err)
	}
	result := caller.received[0]
	details := result[4].(wampmsg.Dict)
	if details["authid"] != "alice" || details["authrole"] != "user" || details["session"] != targetID {
		t.Fatalf("want session details for %d, got %v", targetID, details)
	}

	if err := r.Call(CallRequest{SessionID: callerID, RequestID: 2, Procedure: MetaSessionGet, Args: wampmsg.List{uint64(999999)}}); err != nil {
		t.Fatalf("meta call must succeed: %v", err)
	}
	errMsg := caller.received[1]
	if errMsg[0] != int(wampmsg.KindError) || errMsg[4] != wampmsg.ErrNoSuchSession.URI() {
		t.Fatalf("want ERROR(no_such_session), got %v", errMsg)
	}
}

func TestMetaProcedureURIReservedFromRegistration(t *testing.T) {
	r := newRealm()
	defer r.Close()
	callee := &fakePeer{}
	calleeID := r.Join(callee)
	callee.id = calleeID

	if _, err := r.Register(calleeID, MetaSessionCount); err == nil {
		t.Fatal("registering a reserved meta-procedure URI must fail")
	}
}

func TestInvalidURIRejected(t *testing.T) {
	r := newRealm()
	defer r.Close()
	publisher := &fakePeer{}
	pubID := r.Join(publisher)
	publisher.id = pubID

	r2 := New(Config{Name: "strict", Logger: zerolog.Nop(), URIValidator: func(string, bool) bool { return false }})
	defer r2.Close()
	if _, err := r2.Publish(PublishRequest{SessionID: pubID, Topic: "not.allowed"}); err != wampmsg.ErrInvalidURI {
		t.Fatalf("want ErrInvalidURI, got %v", err)
	}
	_ = time.Millisecond
}
