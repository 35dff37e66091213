package realm

import (
	"sort"

	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// Router-provided meta-procedures, per
// original_source/cppwamp/include/cppwamp/internal/metaapi.hpp's
// MetaApiProvider: a realm answers these directly from its session
// table rather than routing them to a registered callee, since no
// callee could legitimately own introspection of the realm itself.
const (
	MetaSessionCount = "wamp.session.count"
	MetaSessionList  = "wamp.session.list"
	MetaSessionGet   = "wamp.session.get"
)

func isMetaProcedure(procedureURI string) bool {
	switch procedureURI {
	case MetaSessionCount, MetaSessionList, MetaSessionGet:
		return true
	default:
		return false
	}
}

// handleMetaCall answers req directly if it names a meta-procedure,
// reporting whether it did. Must run on the realm's strand.
func (r *Realm) handleMetaCall(caller Peer, req CallRequest) bool {
	switch req.Procedure {
	case MetaSessionCount:
		ids := r.filteredSessionIDs(authRoleFilter(req.Args))
		r.sendMetaResult(caller, req.RequestID, wampmsg.List{len(ids)})
	case MetaSessionList:
		ids := r.filteredSessionIDs(authRoleFilter(req.Args))
		out := make(wampmsg.List, len(ids))
		for i, id := range ids {
			out[i] = id
		}
		r.sendMetaResult(caller, req.RequestID, wampmsg.List{out})
	case MetaSessionGet:
		r.handleSessionGet(caller, req)
	default:
		return false
	}
	return true
}

func (r *Realm) handleSessionGet(caller Peer, req CallRequest) {
	sid, ok := firstArgAsUint64(req.Args)
	if !ok {
		r.sendMetaError(caller, req.RequestID, wampmsg.ErrInvalidArgument)
		return
	}
	peer, ok := r.peers[sid]
	if !ok {
		r.sendMetaError(caller, req.RequestID, wampmsg.ErrNoSuchSession)
		return
	}
	details := wampmsg.Dict{
		"session":  sid,
		"authid":   peer.AuthID(),
		"authrole": peer.AuthRole(),
	}
	r.sendMetaResult(caller, req.RequestID, wampmsg.List{}, details)
}

// filteredSessionIDs returns every joined session id, sorted, optionally
// restricted to the given authrole set (nil means no filter).
func (r *Realm) filteredSessionIDs(authRoles map[string]bool) []uint64 {
	var ids []uint64
	for id, peer := range r.peers {
		if authRoles != nil && !authRoles[peer.AuthRole()] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func authRoleFilter(args wampmsg.List) map[string]bool {
	if len(args) == 0 {
		return nil
	}
	list, ok := args[0].(wampmsg.List)
	if !ok || len(list) == 0 {
		return nil
	}
	roles := map[string]bool{}
	for _, v := range list {
		if s, ok := v.(string); ok {
			roles[s] = true
		}
	}
	return roles
}

func firstArgAsUint64(args wampmsg.List) (uint64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	switch v := args[0].(type) {
	case uint64:
		return v, true
	case int64:
		return uint64(v), true
	case int:
		return uint64(v), true
	case float64:
		return uint64(v), true
	default:
		return 0, false
	}
}

func (r *Realm) sendMetaResult(caller Peer, requestID uint64, args wampmsg.List, kwArgs ...wampmsg.Dict) {
	var kw wampmsg.Dict
	if len(kwArgs) > 0 {
		kw = kwArgs[0]
	}
	caller.Send(wampmsg.KindResult, wampmsg.Result{RequestID: requestID, Details: wampmsg.Dict{}, Args: args, KwArgs: kw}.ToArray())
}

func (r *Realm) sendMetaError(caller Peer, requestID uint64, kind *wampmsg.ErrorKind) {
	caller.Send(wampmsg.KindError, wampmsg.Error{
		RequestKind: wampmsg.KindCall,
		RequestID:   requestID,
		Details:     wampmsg.Dict{},
		Reason:      kind.URI(),
	}.ToArray())
}
