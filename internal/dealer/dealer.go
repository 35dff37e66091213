// Package dealer implements the RPC dispatcher described in spec.md
// §4.3: a RegistrationRegistry mapping procedure URIs to callees, and
// an InvocationTable tracking in-flight calls by both caller-side and
// callee-side keys, with deadline-driven cancellation.
//
// Grounded on
// original_source/cppwamp/include/cppwamp/internal/dealer.hpp. As
// there, each INVOCATION carries a callee-side request id of its own,
// drawn from idgen, rather than the caller's CALL request id.
package dealer

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenzoki/wampcore/internal/disclosure"
	"github.com/tenzoki/wampcore/internal/idgen"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// Peer is the dealer's view of a session that can act as caller and/or
// callee. Like broker.Subscriber, Send reports whether delivery could
// even be attempted so the dealer never assumes a peer outlives its
// registration or in-flight job.
type Peer interface {
	SessionID() uint64
	AuthID() string
	AuthRole() string
	Send(kind wampmsg.Kind, fields wampmsg.List) bool
}

// Registration binds one procedure URI to the callee that owns it.
type Registration struct {
	ID        uint64
	URI       string
	CalleeID  uint64
	Callee    Peer
	MatchOpts wampmsg.Dict
}

type registryKey struct {
	CalleeID uint64
	RegID    uint64
}

// Registry is the RegistrationRegistry of spec.md §4.3: a two-way index
// from (calleeID, registrationID) and from procedure URI to the
// registration.
type Registry struct {
	byKey map[registryKey]*Registration
	byURI map[string]*Registration
}

func newRegistry() *Registry {
	return &Registry{byKey: map[registryKey]*Registration{}, byURI: map[string]*Registration{}}
}

func (r *Registry) insert(reg *Registration) {
	r.byKey[registryKey{reg.CalleeID, reg.ID}] = reg
	r.byURI[reg.URI] = reg
}

func (r *Registry) erase(calleeID, regID uint64) (string, bool) {
	key := registryKey{calleeID, regID}
	reg, ok := r.byKey[key]
	if !ok {
		return "", false
	}
	delete(r.byKey, key)
	delete(r.byURI, reg.URI)
	return reg.URI, true
}

func (r *Registry) find(procedureURI string) (*Registration, bool) {
	reg, ok := r.byURI[procedureURI]
	return reg, ok
}

func (r *Registry) removeCallee(sessionID uint64) {
	for key, reg := range r.byKey {
		if reg.CalleeID == sessionID {
			delete(r.byKey, key)
			delete(r.byURI, reg.URI)
		}
	}
}

type jobKey struct {
	SessionID uint64
	RequestID uint64
}

// Job is one in-flight call: the caller and callee keys it is indexed
// under, the peers themselves, and the deadline a CALL's timeout option
// imposes, if any.
type Job struct {
	CallerKey jobKey
	CalleeKey jobKey
	Caller    Peer
	Callee    Peer

	HasDeadline bool
	Deadline    time.Time

	discardResult   bool
	interruptSent   bool
}

// Table is the InvocationTable of spec.md §4.3: jobs indexed by both
// caller-key and callee-key, plus the single rearming timer that fires
// the earliest deadline across all outstanding jobs. Rearming rescans
// every job linearly, matching cppwamp's approach; spec.md §9 notes a
// heap-backed index as a future optimization, not a required one.
type Table struct {
	byCaller map[jobKey]*Job
	byCallee map[jobKey]*Job

	timer        *time.Timer
	timerKey     jobKey
	nextDeadline time.Time

	onTimeout func(job *Job)
	// schedule runs a deadline callback on the table's owning strand so
	// it never races the goroutine processing CALL/CANCEL/YIELD frames.
	// Defaults to a direct call, which is only safe for single-goroutine
	// use (as in this package's own tests); Dealer.SetScheduler installs
	// the realm's strand in production.
	schedule func(func())
}

func newTable(onTimeout func(job *Job)) *Table {
	return &Table{
		byCaller:     map[jobKey]*Job{},
		byCallee:     map[jobKey]*Job{},
		nextDeadline: time.Time{},
		onTimeout:    onTimeout,
		schedule:     func(fn func()) { fn() },
	}
}

func (t *Table) insert(job *Job) {
	t.byCaller[job.CallerKey] = job
	t.byCallee[job.CalleeKey] = job
	if job.HasDeadline && (t.nextDeadline.IsZero() || job.Deadline.Before(t.nextDeadline)) {
		t.startTimer(job.CalleeKey, job.Deadline)
	}
}

func (t *Table) eraseByCallee(key jobKey) {
	job, ok := t.byCallee[key]
	if !ok {
		return
	}
	delete(t.byCallee, key)
	delete(t.byCaller, job.CallerKey)
	t.updateTimeoutForErased(key)
}

func (t *Table) eraseByCaller(key jobKey) {
	job, ok := t.byCaller[key]
	if !ok {
		return
	}
	delete(t.byCaller, key)
	delete(t.byCallee, job.CalleeKey)
	t.updateTimeoutForErased(job.CalleeKey)
}

// removeSession drops every job where sessionID is caller or callee,
// notifying the other side, and reports how many jobs were removed so
// the caller can keep any in-flight-call accounting in sync.
func (t *Table) removeSession(sessionID uint64, onAbandonedCaller, onAbandonedCallee func(*Job)) (removed int) {
	for key, job := range t.byCallee {
		calleeMatches := job.CalleeKey.SessionID == sessionID
		callerMatches := job.CallerKey.SessionID == sessionID
		if !calleeMatches && !callerMatches {
			continue
		}
		if calleeMatches && !callerMatches && onAbandonedCaller != nil {
			onAbandonedCaller(job)
		}
		if callerMatches && !calleeMatches && onAbandonedCallee != nil {
			onAbandonedCallee(job)
		}
		delete(t.byCaller, job.CallerKey)
		delete(t.byCallee, key)
		removed++
	}
	return removed
}

func (t *Table) startTimer(key jobKey, deadline time.Time) {
	t.timerKey = key
	t.nextDeadline = deadline
	if t.timer != nil {
		t.timer.Stop()
	}
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	t.timer = time.AfterFunc(d, func() { t.schedule(func() { t.onDeadline(key) }) })
}

func (t *Table) onDeadline(key jobKey) {
	t.nextDeadline = time.Time{}
	job, ok := t.byCallee[key]
	if ok && t.onTimeout != nil {
		t.onTimeout(job)
	}
	t.armNextTimeout()
}

func (t *Table) updateTimeoutForErased(erasedCalleeKey jobKey) {
	if t.timerKey == erasedCalleeKey {
		if !t.armNextTimeout() {
			t.nextDeadline = time.Time{}
			if t.timer != nil {
				t.timer.Stop()
			}
		}
	}
}

func (t *Table) armNextTimeout() bool {
	var earliest jobKey
	var deadline time.Time
	found := false
	for key, job := range t.byCallee {
		if !job.HasDeadline {
			continue
		}
		if !found || job.Deadline.Before(deadline) {
			earliest, deadline, found = key, job.Deadline, true
		}
	}
	if found {
		t.startTimer(earliest, deadline)
	}
	return found
}

// Dealer dispatches CALL to the registered callee and routes YIELD/ERROR
// replies back to the waiting caller. It is not safe for concurrent use
// from more than one goroutine; callers run it on the owning realm's
// strand.
type Dealer struct {
	ids      *idgen.Generator
	regIDs   *idgen.Generator
	log      zerolog.Logger
	registry *Registry
	jobs     *Table

	realmRule disclosure.Rule
}

// New creates an empty Dealer. realmRule is the realm's configured
// caller-disclosure rule (spec.md §4.6).
func New(ids, regIDs *idgen.Generator, log zerolog.Logger, realmRule disclosure.Rule) *Dealer {
	d := &Dealer{ids: ids, regIDs: regIDs, log: log, registry: newRegistry(), realmRule: realmRule}
	d.jobs = newTable(d.handleDeadline)
	return d
}

// SetScheduler installs the function that runs a fired deadline's
// cancellation on the caller's own strand, so the InvocationTable is
// never mutated concurrently with frame processing. Must be called
// before any CALL with a timeout is invoked.
func (d *Dealer) SetScheduler(schedule func(func())) {
	d.jobs.schedule = schedule
}

// Register claims procedureURI for callee, failing if the URI is
// already registered (spec.md §4.3; no shared-registration concept for
// RPC, unlike pub/sub).
func (d *Dealer) Register(callee Peer, procedureURI string) (uint64, error) {
	if _, exists := d.registry.find(procedureURI); exists {
		return 0, wampmsg.ErrProcedureAlreadyExists
	}
	reg := &Registration{
		ID:       d.regIDs.Next(),
		URI:      procedureURI,
		CalleeID: callee.SessionID(),
		Callee:   callee,
	}
	d.registry.insert(reg)
	return reg.ID, nil
}

// Unregister releases a registration previously claimed by callee,
// reporting the procedure's URI. Pending invocations against it are
// left to run to completion, matching cppwamp's documented consensus
// (dealer.hpp comment above Dealer::unregister).
func (d *Dealer) Unregister(callee Peer, registrationID uint64) (string, bool) {
	return d.registry.erase(callee.SessionID(), registrationID)
}

// Call describes one CALL to dispatch.
type Call struct {
	RequestID    uint64
	Procedure    string
	Args         wampmsg.List
	KwArgs       wampmsg.Dict
	Timeout      time.Duration
	CallerID     uint64
	CallerAuthID   string
	CallerAuthRole string
	DiscloseMe   bool
	// SessionOverride is the calling session's own disclosure override,
	// or disclosure.Preset if it has none.
	SessionOverride disclosure.Rule
}

// Invoke dispatches call to the procedure's registered callee, enqueues
// an InvocationTable job, and sends the callee its INVOCATION. It
// returns wampmsg.ErrNoSuchProcedure when nothing is registered.
func (d *Dealer) Invoke(caller Peer, call Call) error {
	reg, ok := d.registry.find(call.Procedure)
	if !ok {
		return wampmsg.ErrNoSuchProcedure
	}

	invocationID := d.ids.Next()
	callerKey := jobKey{caller.SessionID(), call.RequestID}
	calleeKey := jobKey{reg.CalleeID, invocationID}

	job := &Job{CallerKey: callerKey, CalleeKey: calleeKey, Caller: caller, Callee: reg.Callee}
	if call.Timeout > 0 {
		job.HasDeadline = true
		job.Deadline = time.Now().Add(call.Timeout)
	}
	d.jobs.insert(job)

	details := wampmsg.Dict{}
	disclose, allowed := disclosure.Resolve(d.realmRule, call.SessionOverride, call.DiscloseMe)
	if !allowed {
		d.jobs.eraseByCallee(calleeKey)
		return wampmsg.ErrDiscloseMeDisallowed
	}
	if disclose {
		disclosure.ApplyIdentity(details, "caller", disclosure.Identity{
			SessionID: call.CallerID,
			AuthID:    call.CallerAuthID,
			AuthRole:  call.CallerAuthRole,
		})
	}

	inv := wampmsg.Invocation{
		RequestID:      invocationID,
		RegistrationID: reg.ID,
		Details:        details,
		Args:           call.Args,
		KwArgs:         call.KwArgs,
	}
	reg.Callee.Send(wampmsg.KindInvocation, inv.ToArray())
	return nil
}

// CancelCall requests cancellation of an outstanding CALL identified by
// the caller's own request id, per spec.md §4.3's three cancel modes.
// mode defaults to killNoWait when unspecified, matching cppwamp.
// found reports whether an outstanding call matched requestID; erased
// reports whether the job was removed from the table immediately
// (killNoWait) as opposed to left outstanding until the callee's
// eventual YIELD/ERROR reply (kill, skip) — callers must only treat
// the call as complete once one of found-with-erased or a later
// YieldResult/YieldError fires, never both.
func (d *Dealer) CancelCall(caller Peer, requestID uint64, mode wampmsg.CancelMode) (found, erased bool) {
	if mode == wampmsg.CancelModeUnknown {
		mode = wampmsg.CancelModeKillNoWait
	}
	key := jobKey{caller.SessionID(), requestID}
	job, ok := d.jobs.byCaller[key]
	if !ok {
		return false, false
	}
	erased = d.cancelJob(job, mode)
	if erased {
		d.jobs.eraseByCaller(key)
	}
	return true, erased
}

func (d *Dealer) cancelJob(job *Job, mode wampmsg.CancelMode) (eraseNow bool) {
	if mode != wampmsg.CancelModeSkip && !job.interruptSent {
		intr := wampmsg.Interrupt{RequestID: job.CalleeKey.RequestID, Options: wampmsg.Dict{"mode": mode.String()}}
		job.Callee.Send(wampmsg.KindInterrupt, intr.ToArray())
		job.interruptSent = true
	}
	if mode == wampmsg.CancelModeKillNoWait {
		eraseNow = true
	}
	if mode != wampmsg.CancelModeKill {
		job.discardResult = true
		errMsg := wampmsg.Error{
			RequestKind: wampmsg.KindCall,
			RequestID:   job.CallerKey.RequestID,
			Details:     wampmsg.Dict{},
			Reason:      wampmsg.ErrCancelled.URI(),
		}
		job.Caller.Send(wampmsg.KindError, errMsg.ToArray())
	}
	return eraseNow
}

// YieldResult delivers a callee's successful reply to the waiting
// caller and removes the job.
func (d *Dealer) YieldResult(callee Peer, requestID uint64, args wampmsg.List, kwArgs wampmsg.Dict) {
	key := jobKey{callee.SessionID(), requestID}
	job, ok := d.jobs.byCallee[key]
	if !ok {
		return
	}
	if !job.discardResult {
		res := wampmsg.Result{RequestID: job.CallerKey.RequestID, Details: wampmsg.Dict{}, Args: args, KwArgs: kwArgs}
		job.Caller.Send(wampmsg.KindResult, res.ToArray())
	}
	d.jobs.eraseByCallee(key)
}

// YieldError delivers a callee's ERROR reply to the waiting caller and
// removes the job.
func (d *Dealer) YieldError(callee Peer, requestID uint64, reason string, args wampmsg.List, kwArgs wampmsg.Dict) {
	key := jobKey{callee.SessionID(), requestID}
	job, ok := d.jobs.byCallee[key]
	if !ok {
		return
	}
	if !job.discardResult {
		errMsg := wampmsg.Error{RequestKind: wampmsg.KindCall, RequestID: job.CallerKey.RequestID, Details: wampmsg.Dict{}, Reason: reason, Args: args, KwArgs: kwArgs}
		job.Caller.Send(wampmsg.KindError, errMsg.ToArray())
	}
	d.jobs.eraseByCallee(key)
}

// RemoveCallee drops every registration and in-flight job belonging to
// sessionID's callee role; abandoned callers are told their call failed
// and abandoned callees (mid-flight as caller, departing as an
// unrelated callee elsewhere) are sent a killNoWait interrupt. It
// returns the number of in-flight jobs removed, so the caller can keep
// an in-flight-call count in sync without reaching into dealer.Table.
func (d *Dealer) RemoveCallee(sessionID uint64) (jobsRemoved int) {
	d.registry.removeCallee(sessionID)
	return d.jobs.removeSession(sessionID, d.notifyAbandonedCaller, d.notifyAbandonedCallee)
}

func (d *Dealer) notifyAbandonedCaller(job *Job) {
	if job.discardResult {
		return
	}
	errMsg := wampmsg.Error{
		RequestKind: wampmsg.KindCall,
		RequestID:   job.CallerKey.RequestID,
		Details:     wampmsg.Dict{"message": "Callee left realm"},
		Reason:      wampmsg.ErrCancelled.URI(),
	}
	job.Caller.Send(wampmsg.KindError, errMsg.ToArray())
}

func (d *Dealer) notifyAbandonedCallee(job *Job) {
	if job.interruptSent {
		return
	}
	intr := wampmsg.Interrupt{RequestID: job.CalleeKey.RequestID, Options: wampmsg.Dict{"mode": wampmsg.CancelModeKillNoWait.String()}}
	job.Callee.Send(wampmsg.KindInterrupt, intr.ToArray())
}

func (d *Dealer) handleDeadline(job *Job) {
	eraseNow := d.cancelJob(job, wampmsg.CancelModeKillNoWait)
	if eraseNow {
		d.jobs.eraseByCallee(job.CalleeKey)
	}
}

// Registrations returns every registration owned by calleeID, sorted by
// id, for diagnostics and realm introspection.
func (d *Dealer) Registrations(calleeID uint64) []*Registration {
	var out []*Registration
	for key, reg := range d.registry.byKey {
		if key.CalleeID == calleeID {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
