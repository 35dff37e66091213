package transport

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tenzoki/wampcore/internal/disclosure"
	"github.com/tenzoki/wampcore/internal/realm"
	"github.com/tenzoki/wampcore/internal/session"
	"github.com/tenzoki/wampcore/internal/uri"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// RealmLookup resolves a realm name from a HELLO to the Realm that
// serves it, as configured by the embedder (public/router).
type RealmLookup func(name string) (*realm.Realm, bool)

// Conn bridges one Transport+Codec pair to the session state machine and,
// once established, to a Realm: it decodes inbound frames, checks them
// against the session's legal-inbound table, and dispatches Subscribe/
// Publish/Call/Register/etc to the realm, turning replies and routed
// events back into outbound frames. Conn itself satisfies realm.Peer.
type Conn struct {
	transport Transport
	codec     wampmsg.Codec
	sess      *session.Session
	log       zerolog.Logger
	lookup    RealmLookup

	realm *realm.Realm
}

// NewConn wires transport and codec to a fresh Session and starts
// receiving frames. lookup resolves the realm named in the peer's HELLO.
func NewConn(t Transport, codec wampmsg.Codec, sessCfg session.Config, lookup RealmLookup) *Conn {
	connID := uuid.NewString()
	c := &Conn{
		transport: t,
		codec:     codec,
		sess:      session.New(sessCfg),
		log:       sessCfg.Logger.With().Str("conn_id", connID).Logger(),
		lookup:    lookup,
	}
	c.sess.Connect()
	c.sess.HandshakeSucceeded()
	t.SetReceiver(c.handleFrame)
	t.SetCloseHandler(c.handleTransportClosed)
	return c
}

// SessionID, AuthID, AuthRole, Send implement realm.Peer (and, by the
// same method set, broker.Subscriber and dealer.Peer).
func (c *Conn) SessionID() uint64 { return c.sess.ID() }
func (c *Conn) AuthID() string    { return c.sess.Identity().AuthID }
func (c *Conn) AuthRole() string  { return c.sess.Identity().AuthRole }

func (c *Conn) Send(kind wampmsg.Kind, fields wampmsg.List) bool {
	data, err := c.codec.Encode(fields)
	if err != nil {
		c.log.Error().Err(err).Str("kind", kind.String()).Msg("encode failed")
		return false
	}
	if err := c.transport.Send(data); err != nil {
		c.log.Warn().Err(err).Str("kind", kind.String()).Msg("send failed")
		return false
	}
	return true
}

func (c *Conn) handleTransportClosed(err error) {
	if c.realm != nil && c.sess.State() == session.StateEstablished {
		c.realm.Leave(c.sess.ID())
	}
	c.sess.Fail("transport closed")
}

func (c *Conn) abort(kind *wampmsg.ErrorKind, message string) {
	c.sess.Fail(message)
	if c.realm != nil {
		c.realm.RecordViolation()
	}
	c.Send(wampmsg.KindAbort, wampmsg.Abort{
		Details: wampmsg.Dict{"message": message},
		Reason:  kind.URI(),
	}.ToArray())
	c.transport.Close()
}

func (c *Conn) sendError(requestKind wampmsg.Kind, requestID uint64, err error) {
	var kind *wampmsg.ErrorKind
	if !errors.As(err, &kind) {
		kind = wampmsg.ErrInvalidArgument
	}
	c.Send(wampmsg.KindError, wampmsg.Error{
		RequestKind: requestKind,
		RequestID:   requestID,
		Details:     wampmsg.Dict{},
		Reason:      kind.URI(),
	}.ToArray())
}

func (c *Conn) handleFrame(data []byte) {
	arr, err := c.codec.Decode(data)
	if err != nil {
		c.abort(wampmsg.ErrProtocolViolation, "malformed frame")
		return
	}
	kind, err := wampmsg.KindOf(arr)
	if err != nil {
		c.abort(wampmsg.ErrProtocolViolation, "missing or invalid message kind")
		return
	}
	if err := c.sess.CheckInbound(kind); err != nil {
		c.abort(wampmsg.ErrProtocolViolation, err.Error())
		return
	}
	c.sess.Touch()

	switch kind {
	case wampmsg.KindHello:
		c.handleHello(arr)
	case wampmsg.KindSubscribe:
		c.handleSubscribe(arr)
	case wampmsg.KindUnsubscribe:
		c.handleUnsubscribe(arr)
	case wampmsg.KindPublish:
		c.handlePublish(arr)
	case wampmsg.KindRegister:
		c.handleRegister(arr)
	case wampmsg.KindUnregister:
		c.handleUnregister(arr)
	case wampmsg.KindCall:
		c.handleCall(arr)
	case wampmsg.KindCancel:
		c.handleCancel(arr)
	case wampmsg.KindYield:
		c.handleYield(arr)
	case wampmsg.KindError:
		c.handleErrorReply(arr)
	case wampmsg.KindGoodbye:
		c.handleGoodbye(arr)
	}
}

// routerFeatures announces the WELCOME.Details.roles feature set, per
// SPEC_FULL.md's supplemented-features section, matching what cppwamp's
// router advertises.
func routerFeatures() wampmsg.Dict {
	return wampmsg.Dict{
		"roles": wampmsg.Dict{
			"broker": wampmsg.Dict{"features": wampmsg.Dict{
				"pattern_based_subscription":    true,
				"publisher_exclusion":           true,
				"publisher_identification":      true,
				"subscriber_blackwhite_listing": true,
			}},
			"dealer": wampmsg.Dict{"features": wampmsg.Dict{
				"call_canceling":           true,
				"progressive_call_results": false,
			}},
		},
	}
}

func (c *Conn) handleHello(arr wampmsg.List) {
	realmName := asString(arr[1])
	details := asDict(arr[2])

	c.sess.BeginEstablishing(realmName)

	rlm, ok := c.lookup(realmName)
	if !ok {
		c.abort(wampmsg.ErrNoSuchRealm, "realm not known: "+realmName)
		return
	}
	c.realm = rlm

	authID := stringOpt(details, "authid")
	authRole := stringOpt(details, "authrole")
	if authRole == "" {
		authRole = "anonymous"
	}

	id := c.realm.Join(c)
	c.sess.Welcome(session.Identity{ID: id, AuthID: authID, AuthRole: authRole, Method: "anonymous"})

	if override, ok := sessionOverrideFromDetails(details); ok {
		c.realm.SetSessionOverride(id, override)
	}

	c.Send(wampmsg.KindWelcome, wampmsg.Welcome{Session: id, Details: routerFeatures()}.ToArray())
}

// sessionOverrideFromDetails reads an optional HELLO.Details disclosure
// override, e.g. {"disclose_publisher": "reveal", "disclose_caller": "conceal"}.
func sessionOverrideFromDetails(details wampmsg.Dict) (realm.DisclosureRules, bool) {
	pub, hasPub := details["disclose_publisher"].(string)
	call, hasCall := details["disclose_caller"].(string)
	if !hasPub && !hasCall {
		return realm.DisclosureRules{}, false
	}
	return realm.DisclosureRules{
		Publisher: ruleFromString(pub),
		Caller:    ruleFromString(call),
	}, true
}

func ruleFromString(s string) disclosure.Rule {
	switch s {
	case "reveal":
		return disclosure.Reveal
	case "conceal":
		return disclosure.Conceal
	case "strictReveal":
		return disclosure.StrictReveal
	case "strictConceal":
		return disclosure.StrictConceal
	case "originator":
		return disclosure.Originator
	default:
		return disclosure.Preset
	}
}

func policyFromOptions(opts wampmsg.Dict) uri.Policy {
	switch stringOpt(opts, "match") {
	case "prefix":
		return uri.PolicyPrefix
	case "wildcard":
		return uri.PolicyWildcard
	default:
		return uri.PolicyExact
	}
}

func (c *Conn) handleSubscribe(arr wampmsg.List) {
	requestID := asUint64(arr[1])
	options := asDict(arr[2])
	topic := asString(arr[3])

	subID, err := c.realm.Subscribe(realm.SubscribeRequest{
		SessionID:         c.sess.ID(),
		Topic:             topic,
		Policy:            policyFromOptions(options),
		ExcludeMe:         boolOpt(options, "exclude_me"),
		ExcludedIDs:       uint64SetOpt(options, "exclude"),
		EligibleIDs:       uint64SetOpt(options, "eligible"),
		ExcludedAuthRoles: stringSetOpt(options, "exclude_authrole"),
		EligibleAuthRoles: stringSetOpt(options, "eligible_authrole"),
	})
	if err != nil {
		c.sendError(wampmsg.KindSubscribe, requestID, err)
		return
	}
	c.Send(wampmsg.KindSubscribed, wampmsg.Subscribed{RequestID: requestID, SubscriptionID: subID}.ToArray())
}

func (c *Conn) handleUnsubscribe(arr wampmsg.List) {
	requestID := asUint64(arr[1])
	subID := asUint64(arr[2])

	_, removed := c.realm.Unsubscribe(c.sess.ID(), subID)
	if !removed {
		c.sendError(wampmsg.KindUnsubscribe, requestID, wampmsg.ErrNoSuchSubscription)
		return
	}
	c.Send(wampmsg.KindUnsubscribed, wampmsg.Unsubscribed{RequestID: requestID}.ToArray())
}

func (c *Conn) handlePublish(arr wampmsg.List) {
	requestID := asUint64(arr[1])
	options := asDict(arr[2])
	topic := asString(arr[3])
	var args wampmsg.List
	var kwArgs wampmsg.Dict
	if len(arr) > 4 {
		args = asList(arr[4])
	}
	if len(arr) > 5 {
		kwArgs = asDict(arr[5])
	}

	publicationID, err := c.realm.Publish(realm.PublishRequest{
		SessionID:  c.sess.ID(),
		Topic:      topic,
		Args:       args,
		KwArgs:     kwArgs,
		DiscloseMe: boolOpt(options, "disclose_me"),
	})
	if err != nil {
		if boolOpt(options, "acknowledge") {
			c.sendError(wampmsg.KindPublish, requestID, err)
		}
		return
	}
	if boolOpt(options, "acknowledge") {
		c.Send(wampmsg.KindPublished, wampmsg.Published{RequestID: requestID, PublicationID: publicationID}.ToArray())
	}
}

func (c *Conn) handleRegister(arr wampmsg.List) {
	requestID := asUint64(arr[1])
	procedure := asString(arr[3])

	regID, err := c.realm.Register(c.sess.ID(), procedure)
	if err != nil {
		c.sendError(wampmsg.KindRegister, requestID, err)
		return
	}
	c.Send(wampmsg.KindRegistered, wampmsg.Registered{RequestID: requestID, RegistrationID: regID}.ToArray())
}

func (c *Conn) handleUnregister(arr wampmsg.List) {
	requestID := asUint64(arr[1])
	regID := asUint64(arr[2])

	_, removed := c.realm.Unregister(c.sess.ID(), regID)
	if !removed {
		c.sendError(wampmsg.KindUnregister, requestID, wampmsg.ErrNoSuchRegistration)
		return
	}
	c.Send(wampmsg.KindUnregistered, wampmsg.Unregistered{RequestID: requestID}.ToArray())
}

func (c *Conn) handleCall(arr wampmsg.List) {
	requestID := asUint64(arr[1])
	options := asDict(arr[2])
	procedure := asString(arr[3])
	var args wampmsg.List
	var kwArgs wampmsg.Dict
	if len(arr) > 4 {
		args = asList(arr[4])
	}
	if len(arr) > 5 {
		kwArgs = asDict(arr[5])
	}

	var timeout time.Duration
	if ms := asUint64(options["timeout"]); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	err := c.realm.Call(realm.CallRequest{
		SessionID:  c.sess.ID(),
		RequestID:  requestID,
		Procedure:  procedure,
		Args:       args,
		KwArgs:     kwArgs,
		Timeout:    timeout,
		DiscloseMe: boolOpt(options, "disclose_me"),
	})
	if err != nil {
		c.sendError(wampmsg.KindCall, requestID, err)
	}
}

func (c *Conn) handleCancel(arr wampmsg.List) {
	requestID := asUint64(arr[1])
	options := asDict(arr[2])

	mode := wampmsg.CancelModeKillNoWait
	switch stringOpt(options, "mode") {
	case "skip":
		mode = wampmsg.CancelModeSkip
	case "kill":
		mode = wampmsg.CancelModeKill
	case "killnowait":
		mode = wampmsg.CancelModeKillNoWait
	}
	c.realm.CancelCall(c.sess.ID(), requestID, mode)
}

func (c *Conn) handleYield(arr wampmsg.List) {
	requestID := asUint64(arr[1])
	options := asDict(arr[2])
	var args wampmsg.List
	var kwArgs wampmsg.Dict
	if len(arr) > 3 {
		args = asList(arr[3])
	}
	if len(arr) > 4 {
		kwArgs = asDict(arr[4])
	}
	_ = options
	c.realm.YieldResult(c.sess.ID(), requestID, args, kwArgs)
}

// handleErrorReply handles an ERROR sent by a callee in response to an
// INVOCATION it cannot fulfill (the only ERROR a peer legally sends).
func (c *Conn) handleErrorReply(arr wampmsg.List) {
	requestID := asUint64(arr[2])
	reason := asString(arr[4])
	var args wampmsg.List
	var kwArgs wampmsg.Dict
	if len(arr) > 5 {
		args = asList(arr[5])
	}
	if len(arr) > 6 {
		kwArgs = asDict(arr[6])
	}
	c.realm.YieldError(c.sess.ID(), requestID, reason, args, kwArgs)
}

func (c *Conn) handleGoodbye(arr wampmsg.List) {
	reason := ""
	if len(arr) > 2 {
		reason = asString(arr[2])
	}
	if c.sess.State() == session.StateEstablished {
		c.sess.BeginShutdown()
		c.Send(wampmsg.KindGoodbye, wampmsg.Goodbye{Details: wampmsg.Dict{}, Reason: "wamp.close.goodbye_and_out"}.ToArray())
	}
	_ = reason
	if c.realm != nil {
		c.realm.Leave(c.sess.ID())
	}
	c.sess.Close()
	c.transport.Close()
}
