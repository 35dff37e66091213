package wampmsg

import "fmt"

// Options/Details/KwArgs are all represented as map[string]any, matching
// the loosely typed WAMP wire format; Args is a positional []any list.
type (
	Dict = map[string]any
	List = []any
)

// Hello is sent by a peer to request session establishment on a realm.
type Hello struct {
	Realm   string
	Details Dict
}

func (m Hello) ToArray() List { return List{int(KindHello), m.Realm, m.Details} }

// Welcome is sent by the router to accept a session.
type Welcome struct {
	Session uint64
	Details Dict
}

func (m Welcome) ToArray() List { return List{int(KindWelcome), m.Session, m.Details} }

// Abort terminates a session before it reaches Established.
type Abort struct {
	Details Dict
	Reason  string
}

func (m Abort) ToArray() List { return List{int(KindAbort), m.Details, m.Reason} }

// Goodbye begins or acknowledges graceful session shutdown.
type Goodbye struct {
	Details Dict
	Reason  string
}

func (m Goodbye) ToArray() List { return List{int(KindGoodbye), m.Details, m.Reason} }

// Error carries a semantic failure in reply to a RequestKind/RequestID.
type Error struct {
	RequestKind Kind
	RequestID   uint64
	Details     Dict
	Reason      string
	Args        List
	KwArgs      Dict
}

func (m Error) ToArray() List {
	arr := List{int(KindError), int(m.RequestKind), m.RequestID, m.Details, m.Reason}
	if len(m.Args) > 0 || len(m.KwArgs) > 0 {
		arr = append(arr, m.Args)
	}
	if len(m.KwArgs) > 0 {
		arr = append(arr, m.KwArgs)
	}
	return arr
}

// Publish is a publisher's request to deliver an event to a topic.
type Publish struct {
	RequestID uint64
	Options   Dict
	Topic     string
	Args      List
	KwArgs    Dict
}

func (m Publish) ToArray() List {
	return List{int(KindPublish), m.RequestID, m.Options, m.Topic, m.Args, m.KwArgs}
}

// Published acknowledges a PUBLISH that requested acknowledgement.
type Published struct {
	RequestID     uint64
	PublicationID uint64
}

func (m Published) ToArray() List {
	return List{int(KindPublished), m.RequestID, m.PublicationID}
}

// Subscribe requests delivery of events matching Topic under Policy.
type Subscribe struct {
	RequestID uint64
	Options   Dict
	Topic     string
}

func (m Subscribe) ToArray() List {
	return List{int(KindSubscribe), m.RequestID, m.Options, m.Topic}
}

// Subscribed acknowledges a SUBSCRIBE.
type Subscribed struct {
	RequestID      uint64
	SubscriptionID uint64
}

func (m Subscribed) ToArray() List {
	return List{int(KindSubscribed), m.RequestID, m.SubscriptionID}
}

// Unsubscribe cancels a subscription.
type Unsubscribe struct {
	RequestID      uint64
	SubscriptionID uint64
}

func (m Unsubscribe) ToArray() List {
	return List{int(KindUnsubscribe), m.RequestID, m.SubscriptionID}
}

// Unsubscribed acknowledges an UNSUBSCRIBE.
type Unsubscribed struct {
	RequestID uint64
}

func (m Unsubscribed) ToArray() List { return List{int(KindUnsubscribed), m.RequestID} }

// Event delivers a published payload to one matching subscriber.
type Event struct {
	SubscriptionID uint64
	PublicationID  uint64
	Details        Dict
	Args           List
	KwArgs         Dict
}

func (m Event) ToArray() List {
	return List{int(KindEvent), m.SubscriptionID, m.PublicationID, m.Details, m.Args, m.KwArgs}
}

// Call requests invocation of a remote procedure.
type Call struct {
	RequestID uint64
	Options   Dict
	Procedure string
	Args      List
	KwArgs    Dict
}

func (m Call) ToArray() List {
	return List{int(KindCall), m.RequestID, m.Options, m.Procedure, m.Args, m.KwArgs}
}

// CancelMode identifies how a CALL should be cancelled, per spec.md §4.3.
type CancelMode int

const (
	CancelModeUnknown CancelMode = iota
	CancelModeSkip
	CancelModeKill
	CancelModeKillNoWait
)

func (m CancelMode) String() string {
	switch m {
	case CancelModeSkip:
		return "skip"
	case CancelModeKill:
		return "kill"
	case CancelModeKillNoWait:
		return "killnowait"
	default:
		return "unknown"
	}
}

// Cancel requests cancellation of an outstanding CALL.
type Cancel struct {
	RequestID uint64
	Options   Dict
	Mode      CancelMode
}

func (m Cancel) ToArray() List { return List{int(KindCancel), m.RequestID, m.Options} }

// Result carries a successful RPC outcome back to the caller.
type Result struct {
	RequestID uint64
	Details   Dict
	Args      List
	KwArgs    Dict
}

func (m Result) ToArray() List {
	return List{int(KindResult), m.RequestID, m.Details, m.Args, m.KwArgs}
}

// Register requests ownership of a procedure URI.
type Register struct {
	RequestID uint64
	Options   Dict
	Procedure string
}

func (m Register) ToArray() List {
	return List{int(KindRegister), m.RequestID, m.Options, m.Procedure}
}

// Registered acknowledges a REGISTER.
type Registered struct {
	RequestID      uint64
	RegistrationID uint64
}

func (m Registered) ToArray() List {
	return List{int(KindRegistered), m.RequestID, m.RegistrationID}
}

// Unregister releases a previously claimed registration.
type Unregister struct {
	RequestID      uint64
	RegistrationID uint64
}

func (m Unregister) ToArray() List {
	return List{int(KindUnregister), m.RequestID, m.RegistrationID}
}

// Unregistered acknowledges an UNREGISTER.
type Unregistered struct {
	RequestID uint64
}

func (m Unregistered) ToArray() List { return List{int(KindUnregistered), m.RequestID} }

// Invocation delivers a call to the callee that owns the registration.
type Invocation struct {
	RequestID      uint64
	RegistrationID uint64
	Details        Dict
	Args           List
	KwArgs         Dict
}

func (m Invocation) ToArray() List {
	return List{int(KindInvocation), m.RequestID, m.RegistrationID, m.Details, m.Args, m.KwArgs}
}

// Interrupt requests cancellation of an outstanding INVOCATION.
type Interrupt struct {
	RequestID uint64
	Options   Dict
}

func (m Interrupt) ToArray() List { return List{int(KindInterrupt), m.RequestID, m.Options} }

// Yield delivers a callee's result for a prior INVOCATION.
type Yield struct {
	RequestID uint64
	Options   Dict
	Args      List
	KwArgs    Dict
}

func (m Yield) ToArray() List {
	return List{int(KindYield), m.RequestID, m.Options, m.Args, m.KwArgs}
}

// KindOf inspects a decoded message array and returns its Kind. It
// returns an error wrapping ErrProtocolViolation if arr is empty or its
// first element is not a message-kind number.
func KindOf(arr List) (Kind, error) {
	if len(arr) == 0 {
		return 0, fmt.Errorf("empty message array: %w", ErrProtocolViolation)
	}
	n, ok := asInt(arr[0])
	if !ok {
		return 0, fmt.Errorf("message kind is not a number (type %T): %w", arr[0], ErrProtocolViolation)
	}
	return Kind(n), nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}
