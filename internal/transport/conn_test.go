package transport

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenzoki/wampcore/internal/realm"
	"github.com/tenzoki/wampcore/internal/session"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

type testClient struct {
	t     *DirectTransport
	codec wampmsg.Codec
	in    chan wampmsg.List
}

func newTestClient(t *DirectTransport) *testClient {
	c := &testClient{t: t, codec: wampmsg.JSONCodec{}, in: make(chan wampmsg.List, 16)}
	t.SetReceiver(func(data []byte) {
		arr, err := c.codec.Decode(data)
		if err != nil {
			return
		}
		c.in <- arr
	})
	return c
}

func (c *testClient) send(arr wampmsg.List) {
	data, _ := c.codec.Encode(arr)
	c.t.Send(data)
}

func (c *testClient) recv(tb testing.TB) wampmsg.List {
	tb.Helper()
	select {
	case arr := <-c.in:
		return arr
	case <-time.After(time.Second):
		tb.Fatal("timed out waiting for a frame")
		return nil
	}
}

func newTestRealm() *realm.Realm {
	return realm.New(realm.Config{Name: "test", Logger: zerolog.Nop()})
}

func TestHelloWelcome(t *testing.T) {
	rlm := newTestRealm()
	defer rlm.Close()
	lookup := func(name string) (*realm.Realm, bool) {
		if name != "test" {
			return nil, false
		}
		return rlm, true
	}

	server, clientT := NewDirectPair()
	NewConn(server, wampmsg.JSONCodec{}, session.Config{Logger: zerolog.Nop()}, lookup)
	client := newTestClient(clientT)

	client.send(wampmsg.Hello{Realm: "test", Details: wampmsg.Dict{"authid": "alice"}}.ToArray())
	welcome := client.recv(t)
	kind, err := wampmsg.KindOf(welcome)
	if err != nil || kind != wampmsg.KindWelcome {
		t.Fatalf("want WELCOME, got %v (err=%v)", welcome, err)
	}
}

func TestHelloUnknownRealmAborts(t *testing.T) {
	lookup := func(name string) (*realm.Realm, bool) { return nil, false }

	server, clientT := NewDirectPair()
	NewConn(server, wampmsg.JSONCodec{}, session.Config{Logger: zerolog.Nop()}, lookup)
	client := newTestClient(clientT)

	client.send(wampmsg.Hello{Realm: "nope", Details: wampmsg.Dict{}}.ToArray())
	abort := client.recv(t)
	kind, err := wampmsg.KindOf(abort)
	if err != nil || kind != wampmsg.KindAbort {
		t.Fatalf("want ABORT, got %v (err=%v)", abort, err)
	}
}

func TestIllegalMessageBeforeHelloAborts(t *testing.T) {
	rlm := newTestRealm()
	defer rlm.Close()
	lookup := func(name string) (*realm.Realm, bool) { return rlm, true }

	server, clientT := NewDirectPair()
	NewConn(server, wampmsg.JSONCodec{}, session.Config{Logger: zerolog.Nop()}, lookup)
	client := newTestClient(clientT)

	client.send(wampmsg.Subscribe{RequestID: 1, Options: wampmsg.Dict{}, Topic: "a.b"}.ToArray())
	abort := client.recv(t)
	kind, err := wampmsg.KindOf(abort)
	if err != nil || kind != wampmsg.KindAbort {
		t.Fatalf("want ABORT for a pre-HELLO SUBSCRIBE, got %v (err=%v)", abort, err)
	}
}

// TestBadKindNumberAbortsWithTypeNumberHint drives spec.md §8 scenario
// 6's literal [0, 1, {}] frame through a real Conn: kind 0 is not a
// recognized message kind, but KindOf decodes it successfully, so the
// violation must be caught downstream and the ABORT hint must name the
// raw numeric code rather than a bare "UNKNOWN".
func TestBadKindNumberAbortsWithTypeNumberHint(t *testing.T) {
	rlm := newTestRealm()
	defer rlm.Close()
	lookup := func(name string) (*realm.Realm, bool) { return rlm, true }

	server, clientT := NewDirectPair()
	NewConn(server, wampmsg.JSONCodec{}, session.Config{Logger: zerolog.Nop()}, lookup)
	client := newTestClient(clientT)

	client.send(wampmsg.List{0, 1, wampmsg.Dict{}})
	abort := client.recv(t)
	kind, err := wampmsg.KindOf(abort)
	if err != nil || kind != wampmsg.KindAbort {
		t.Fatalf("want ABORT, got %v (err=%v)", abort, err)
	}
	details, ok := abort[1].(wampmsg.Dict)
	if !ok {
		t.Fatalf("want ABORT Details dict, got %v", abort[1])
	}
	hint, _ := details["message"].(string)
	if !strings.Contains(hint, "type number") {
		t.Fatalf("want ABORT hint containing %q, got %q", "type number", hint)
	}
}

func TestSubscribePublishEvent(t *testing.T) {
	rlm := newTestRealm()
	defer rlm.Close()
	lookup := func(name string) (*realm.Realm, bool) { return rlm, true }

	subServer, subClientT := NewDirectPair()
	NewConn(subServer, wampmsg.JSONCodec{}, session.Config{Logger: zerolog.Nop()}, lookup)
	subscriber := newTestClient(subClientT)
	subscriber.send(wampmsg.Hello{Realm: "test", Details: wampmsg.Dict{}}.ToArray())
	subscriber.recv(t) // WELCOME

	subscriber.send(wampmsg.Subscribe{RequestID: 1, Options: wampmsg.Dict{}, Topic: "a.b"}.ToArray())
	subscribed := subscriber.recv(t)
	if kind, _ := wampmsg.KindOf(subscribed); kind != wampmsg.KindSubscribed {
		t.Fatalf("want SUBSCRIBED, got %v", subscribed)
	}

	pubServer, pubClientT := NewDirectPair()
	NewConn(pubServer, wampmsg.JSONCodec{}, session.Config{Logger: zerolog.Nop()}, lookup)
	publisher := newTestClient(pubClientT)
	publisher.send(wampmsg.Hello{Realm: "test", Details: wampmsg.Dict{}}.ToArray())
	publisher.recv(t) // WELCOME

	publisher.send(wampmsg.Publish{
		RequestID: 2,
		Options:   wampmsg.Dict{"acknowledge": true},
		Topic:     "a.b",
		Args:      wampmsg.List{"hi"},
	}.ToArray())
	published := publisher.recv(t)
	if kind, _ := wampmsg.KindOf(published); kind != wampmsg.KindPublished {
		t.Fatalf("want PUBLISHED, got %v", published)
	}

	event := subscriber.recv(t)
	kind, err := wampmsg.KindOf(event)
	if err != nil || kind != wampmsg.KindEvent {
		t.Fatalf("want EVENT, got %v (err=%v)", event, err)
	}
	if event[2] != published[2] {
		t.Fatalf("EVENT publication id %v must match PUBLISHED's %v", event[2], published[2])
	}
}

func TestRegisterCallYield(t *testing.T) {
	rlm := newTestRealm()
	defer rlm.Close()
	lookup := func(name string) (*realm.Realm, bool) { return rlm, true }

	calleeServer, calleeClientT := NewDirectPair()
	NewConn(calleeServer, wampmsg.JSONCodec{}, session.Config{Logger: zerolog.Nop()}, lookup)
	callee := newTestClient(calleeClientT)
	callee.send(wampmsg.Hello{Realm: "test", Details: wampmsg.Dict{}}.ToArray())
	callee.recv(t) // WELCOME

	callee.send(wampmsg.Register{RequestID: 1, Options: wampmsg.Dict{}, Procedure: "com.example.add"}.ToArray())
	registered := callee.recv(t)
	if kind, _ := wampmsg.KindOf(registered); kind != wampmsg.KindRegistered {
		t.Fatalf("want REGISTERED, got %v", registered)
	}

	callerServer, callerClientT := NewDirectPair()
	NewConn(callerServer, wampmsg.JSONCodec{}, session.Config{Logger: zerolog.Nop()}, lookup)
	caller := newTestClient(callerClientT)
	caller.send(wampmsg.Hello{Realm: "test", Details: wampmsg.Dict{}}.ToArray())
	caller.recv(t) // WELCOME

	caller.send(wampmsg.Call{RequestID: 2, Options: wampmsg.Dict{}, Procedure: "com.example.add", Args: wampmsg.List{2, 3}}.ToArray())

	invocation := callee.recv(t)
	if kind, _ := wampmsg.KindOf(invocation); kind != wampmsg.KindInvocation {
		t.Fatalf("want INVOCATION, got %v", invocation)
	}
	requestID := invocation[1]

	callee.send(wampmsg.Yield{RequestID: asUint64(requestID), Options: wampmsg.Dict{}, Args: wampmsg.List{5}}.ToArray())

	result := caller.recv(t)
	if kind, _ := wampmsg.KindOf(result); kind != wampmsg.KindResult {
		t.Fatalf("want RESULT, got %v", result)
	}
	if result[3].([]any)[0].(float64) != 5 {
		t.Fatalf("want result arg 5, got %v", result[3])
	}
}
