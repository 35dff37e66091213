// Package transport defines the minimal byte-stream contract the routing
// core consumes and the in-process implementation used by tests and by
// cmd/wampd's embedded demo mode, per spec.md §6 and SPEC_FULL.md's
// domain-stack section. TCP/TLS/Unix/WebSocket transports are routine
// framing code outside this module's scope; a production build adds them
// as additional Transport implementations behind this same interface.
package transport

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send once the transport has been closed.
var ErrClosed = errors.New("transport: closed")

// Transport is a bidirectional, framed byte stream. One frame per Send
// call corresponds to one decoded WAMP message once passed through a
// wampmsg.Codec.
type Transport interface {
	// Send delivers one frame to the peer.
	Send(data []byte) error
	// SetReceiver installs the callback invoked for each inbound frame.
	// Must be called once, before traffic is expected.
	SetReceiver(fn func(data []byte))
	// SetCloseHandler installs the callback invoked when the transport
	// closes.
	SetCloseHandler(fn func(err error))
	// Close tears down the transport. Idempotent.
	Close() error
}

// DirectTransport connects two in-process peers via buffered channels,
// with no encoding beyond the Codec the caller layers on top.
type DirectTransport struct {
	out chan []byte
	in  chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	receiverOnce sync.Once
	closeHandler func(error)
	mu           sync.Mutex
}

// NewDirectPair returns two DirectTransports, each end of a single
// connection: data sent on one arrives on the other.
func NewDirectPair() (a, b *DirectTransport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a = &DirectTransport{out: ab, in: ba, closed: make(chan struct{})}
	b = &DirectTransport{out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

func (t *DirectTransport) Send(data []byte) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	select {
	case t.out <- data:
		return nil
	case <-t.closed:
		return ErrClosed
	}
}

func (t *DirectTransport) SetReceiver(fn func(data []byte)) {
	t.receiverOnce.Do(func() {
		go func() {
			for {
				select {
				case data, ok := <-t.in:
					if !ok {
						return
					}
					fn(data)
				case <-t.closed:
					return
				}
			}
		}()
	})
}

func (t *DirectTransport) SetCloseHandler(fn func(error)) {
	t.mu.Lock()
	t.closeHandler = fn
	t.mu.Unlock()
}

// Close closes this end only and runs this end's close handler. The
// peer end stays open and is not notified.
func (t *DirectTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		handler := t.closeHandler
		t.mu.Unlock()
		if handler != nil {
			handler(nil)
		}
	})
	return nil
}
