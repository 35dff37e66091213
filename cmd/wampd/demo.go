package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tenzoki/wampcore/internal/logging"
	"github.com/tenzoki/wampcore/internal/transport"
	"github.com/tenzoki/wampcore/internal/wampmsg"
	"github.com/tenzoki/wampcore/public/router"
)

// demoClient is a tiny synchronous WAMP client built directly on a
// transport.DirectTransport, enough to drive the scripted exchange in
// runDemo without pulling in a real client library.
type demoClient struct {
	name  string
	t     *transport.DirectTransport
	codec wampmsg.Codec
	in    chan wampmsg.List
}

func newDemoClient(name string, t *transport.DirectTransport, codec wampmsg.Codec) *demoClient {
	c := &demoClient{name: name, t: t, codec: codec, in: make(chan wampmsg.List, 16)}
	t.SetReceiver(func(data []byte) {
		arr, err := codec.Decode(data)
		if err != nil {
			logging.Errorf(fmt.Sprintf("%s: decode failed", name), err)
			return
		}
		c.in <- arr
	})
	return c
}

func (c *demoClient) send(arr wampmsg.List) error {
	data, err := c.codec.Encode(arr)
	if err != nil {
		return err
	}
	return c.t.Send(data)
}

// recv waits up to two seconds for the next frame and returns it if its
// Kind matches want; a frame of any other kind is returned as an error.
func (c *demoClient) recv(want wampmsg.Kind) (wampmsg.List, error) {
	select {
	case arr := <-c.in:
		kind, err := wampmsg.KindOf(arr)
		if err != nil {
			return nil, err
		}
		if kind != want {
			return nil, fmt.Errorf("%s: expected %s, got %s", c.name, want, kind)
		}
		return arr, nil
	case <-time.After(2 * time.Second):
		return nil, fmt.Errorf("%s: timed out waiting for %s", c.name, want)
	}
}

func runDemo() error {
	r := router.New(prometheus.NewRegistry())
	defer r.Close()

	if _, err := r.AddRealm("demo.realm", router.RealmOptions{}); err != nil {
		return err
	}
	logging.Info("realm \"demo.realm\" created")

	codec := r.Codec()

	subTransport := r.Connect()
	subscriber := newDemoClient("subscriber", subTransport, codec)
	if err := subscriber.send(wampmsg.Hello{Realm: "demo.realm", Details: wampmsg.Dict{"authid": "alice"}}.ToArray()); err != nil {
		return err
	}
	if _, err := subscriber.recv(wampmsg.KindWelcome); err != nil {
		return err
	}
	logging.Info("subscriber alice: WELCOME received")

	if err := subscriber.send(wampmsg.Subscribe{RequestID: 1, Options: wampmsg.Dict{}, Topic: "com.example.greeting"}.ToArray()); err != nil {
		return err
	}
	subscribed, err := subscriber.recv(wampmsg.KindSubscribed)
	if err != nil {
		return err
	}
	logging.Info(fmt.Sprintf("subscriber alice: SUBSCRIBED subscription=%v", subscribed[2]))

	pubTransport := r.Connect()
	publisher := newDemoClient("publisher", pubTransport, codec)
	if err := publisher.send(wampmsg.Hello{Realm: "demo.realm", Details: wampmsg.Dict{"authid": "bob"}}.ToArray()); err != nil {
		return err
	}
	if _, err := publisher.recv(wampmsg.KindWelcome); err != nil {
		return err
	}
	logging.Info("publisher bob: WELCOME received")

	if err := publisher.send(wampmsg.Publish{
		RequestID: 2,
		Options:   wampmsg.Dict{"acknowledge": true},
		Topic:     "com.example.greeting",
		Args:      wampmsg.List{"hello"},
	}.ToArray()); err != nil {
		return err
	}
	published, err := publisher.recv(wampmsg.KindPublished)
	if err != nil {
		return err
	}
	logging.Info(fmt.Sprintf("publisher bob: PUBLISHED publication=%v", published[2]))

	event, err := subscriber.recv(wampmsg.KindEvent)
	if err != nil {
		return err
	}
	logging.Info(fmt.Sprintf("subscriber alice: EVENT args=%v", event[4]))

	calleeTransport := r.Connect()
	callee := newDemoClient("callee", calleeTransport, codec)
	if err := callee.send(wampmsg.Hello{Realm: "demo.realm", Details: wampmsg.Dict{"authid": "carol"}}.ToArray()); err != nil {
		return err
	}
	if _, err := callee.recv(wampmsg.KindWelcome); err != nil {
		return err
	}
	if err := callee.send(wampmsg.Register{RequestID: 1, Options: wampmsg.Dict{}, Procedure: "com.example.add"}.ToArray()); err != nil {
		return err
	}
	if _, err := callee.recv(wampmsg.KindRegistered); err != nil {
		return err
	}
	logging.Info("callee carol: REGISTERED com.example.add")

	callerTransport := r.Connect()
	caller := newDemoClient("caller", callerTransport, codec)
	if err := caller.send(wampmsg.Hello{Realm: "demo.realm", Details: wampmsg.Dict{"authid": "dave"}}.ToArray()); err != nil {
		return err
	}
	if _, err := caller.recv(wampmsg.KindWelcome); err != nil {
		return err
	}
	if err := caller.send(wampmsg.Call{
		RequestID: 3,
		Options:   wampmsg.Dict{},
		Procedure: "com.example.add",
		Args:      wampmsg.List{2, 3},
	}.ToArray()); err != nil {
		return err
	}

	invocation, err := callee.recv(wampmsg.KindInvocation)
	if err != nil {
		return err
	}
	logging.Info(fmt.Sprintf("callee carol: INVOCATION args=%v", invocation[4]))
	requestID := invocation[1]

	if err := callee.send(wampmsg.Yield{RequestID: toUint64(requestID), Options: wampmsg.Dict{}, Args: wampmsg.List{5}}.ToArray()); err != nil {
		return err
	}

	result, err := caller.recv(wampmsg.KindResult)
	if err != nil {
		return err
	}
	logging.Info(fmt.Sprintf("caller dave: RESULT args=%v", result[3]))

	return nil
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case int64:
		return uint64(n)
	case int:
		return uint64(n)
	case float64:
		return uint64(n)
	default:
		return 0
	}
}
