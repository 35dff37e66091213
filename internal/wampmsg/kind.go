// Package wampmsg defines the WAMP v2 message kinds consumed and emitted
// by the routing core, together with the Codec abstraction the transport
// layer uses to turn wire bytes into a decoded message array and back.
//
// A Codec works on the raw `[kind, ...fields]` array form (a List).
// Inbound messages are read field by field from that array; outbound
// messages are built from the typed structs in messages.go, one per
// kind, through their ToArray methods.
package wampmsg

import "fmt"

// Kind identifies a WAMP message by its numeric wire code.
type Kind int

const (
	KindHello        Kind = 1
	KindWelcome      Kind = 2
	KindAbort        Kind = 3
	KindChallenge    Kind = 4
	KindAuthenticate Kind = 5
	KindGoodbye      Kind = 6
	KindError        Kind = 8
	KindPublish      Kind = 16
	KindPublished    Kind = 17
	KindSubscribe    Kind = 32
	KindSubscribed   Kind = 33
	KindUnsubscribe  Kind = 34
	KindUnsubscribed Kind = 35
	KindEvent        Kind = 36
	KindCall         Kind = 48
	KindCancel       Kind = 49
	KindResult       Kind = 50
	KindRegister     Kind = 64
	KindRegistered   Kind = 65
	KindUnregister   Kind = 66
	KindUnregistered Kind = 67
	KindInvocation   Kind = 68
	KindInterrupt    Kind = 69
	KindYield        Kind = 70
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "HELLO"
	case KindWelcome:
		return "WELCOME"
	case KindAbort:
		return "ABORT"
	case KindChallenge:
		return "CHALLENGE"
	case KindAuthenticate:
		return "AUTHENTICATE"
	case KindGoodbye:
		return "GOODBYE"
	case KindError:
		return "ERROR"
	case KindPublish:
		return "PUBLISH"
	case KindPublished:
		return "PUBLISHED"
	case KindSubscribe:
		return "SUBSCRIBE"
	case KindSubscribed:
		return "SUBSCRIBED"
	case KindUnsubscribe:
		return "UNSUBSCRIBE"
	case KindUnsubscribed:
		return "UNSUBSCRIBED"
	case KindEvent:
		return "EVENT"
	case KindCall:
		return "CALL"
	case KindCancel:
		return "CANCEL"
	case KindResult:
		return "RESULT"
	case KindRegister:
		return "REGISTER"
	case KindRegistered:
		return "REGISTERED"
	case KindUnregister:
		return "UNREGISTER"
	case KindUnregistered:
		return "UNREGISTERED"
	case KindInvocation:
		return "INVOCATION"
	case KindInterrupt:
		return "INTERRUPT"
	case KindYield:
		return "YIELD"
	default:
		return fmt.Sprintf("type number %d", int(k))
	}
}
