package wampmsg

import "errors"

// ErrorKind is a sentinel error identifying one of the semantic failure
// kinds the broker/dealer can return. Session-layer code translates an
// ErrorKind into an outbound ERROR or ABORT message; it never leaks
// across a strand boundary as anything other than this sentinel.
type ErrorKind struct {
	uri  string
	desc string
}

func (e *ErrorKind) Error() string { return e.desc }

// URI returns the wamp.error.* URI this kind maps to on the wire.
func (e *ErrorKind) URI() string { return e.uri }

func newKind(uri, desc string) *ErrorKind { return &ErrorKind{uri: uri, desc: desc} }

// Error kinds emitted by the broker and dealer, per spec.md §6/§7.
var (
	ErrNoSuchProcedure        = newKind("wamp.error.no_such_procedure", "no such procedure")
	ErrNoSuchSubscription     = newKind("wamp.error.no_such_subscription", "no such subscription")
	ErrNoSuchRegistration     = newKind("wamp.error.no_such_registration", "no such registration")
	ErrProcedureAlreadyExists = newKind("wamp.error.procedure_already_exists", "procedure already exists")
	ErrInvalidArgument        = newKind("wamp.error.invalid_argument", "invalid argument")
	ErrInvalidURI             = newKind("wamp.error.invalid_uri", "invalid uri")
	ErrOptionNotAllowed       = newKind("wamp.error.option_not_allowed", "option not allowed")
	ErrAuthorizationDenied    = newKind("wamp.error.authorization_denied", "authorization denied")
	ErrCancelled              = newKind("wamp.error.cancelled", "cancelled")
	ErrPayloadSizeExceeded    = newKind("wamp.error.payload_size_exceeded", "payload size exceeded")
	ErrDiscloseMeDisallowed   = newKind("wamp.error.disclose_me_disallowed", "disclose_me disallowed")
	ErrProtocolViolation      = newKind("wamp.error.protocol_violation", "protocol violation")
	ErrNoSuchRealm            = newKind("wamp.error.no_such_realm", "no such realm")
	ErrNoSuchSession          = newKind("wamp.error.no_such_session", "no such session")
)

// Is allows errors.Is(err, wampmsg.ErrNoSuchProcedure) to work across
// wrapped errors, since *ErrorKind values are singletons compared by
// identity by the standard errors package already; Is is defined for
// symmetry with user code that wraps a *ErrorKind in a new error value.
func (e *ErrorKind) Is(target error) bool {
	var other *ErrorKind
	if errors.As(target, &other) {
		return other == e
	}
	return false
}
