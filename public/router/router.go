// Package router is the embedder-facing API for hosting one or more WAMP
// realms in-process, analogous in shape to the reference codebase's
// public/orchestrator and public/agent packages: a small facade over the
// internal broker/dealer/realm/session machinery that an embedding Go
// program links against directly.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tenzoki/wampcore/internal/config"
	"github.com/tenzoki/wampcore/internal/disclosure"
	"github.com/tenzoki/wampcore/internal/logging"
	"github.com/tenzoki/wampcore/internal/metrics"
	"github.com/tenzoki/wampcore/internal/realm"
	"github.com/tenzoki/wampcore/internal/session"
	"github.com/tenzoki/wampcore/internal/transport"
	"github.com/tenzoki/wampcore/internal/uri"
	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// Router owns a set of named realms and the registry used to resolve a
// HELLO's realm name to the Realm that serves it.
type Router struct {
	mu       sync.RWMutex
	realms   map[string]*realm.Realm
	registry *prometheus.Registry
	log      zerolog.Logger
	codec    wampmsg.Codec

	// sessionDefaults apply to every connection accepted by this Router,
	// before a HELLO names the realm whose own timeouts would otherwise
	// govern the session.
	sessionDefaults session.Config
}

// New creates an empty Router. Registry may be nil, in which case a
// fresh prometheus.Registry is created so realm metrics stay isolated
// per Router instance.
func New(registry *prometheus.Registry) *Router {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Router{
		realms:   map[string]*realm.Realm{},
		registry: registry,
		log:      logging.Logger,
		codec:    wampmsg.JSONCodec{},
	}
}

// NewFromConfig builds a Router and every realm named in cfg.Realms.
func NewFromConfig(cfg *config.Config) (*Router, error) {
	logging.Init(logging.Config{Level: logging.Level(cfg.Logging.Level), JSONOutput: cfg.Logging.JSONOutput})

	r := New(nil)
	switch cfg.Codec {
	case "msgpack":
		r.codec = wampmsg.MsgPackCodec{}
	default:
		r.codec = wampmsg.JSONCodec{}
	}

	for _, rc := range cfg.Realms {
		opts := RealmOptions{
			Disclosure: realm.DisclosureRules{
				Publisher: ruleFromConfigString(rc.DisclosurePublisher),
				Caller:    ruleFromConfigString(rc.DisclosureCaller),
			},
		}
		if _, err := r.AddRealm(rc.Name, opts); err != nil {
			return nil, fmt.Errorf("configuring realm %q: %w", rc.Name, err)
		}
		if rc.CommandTimeout() > 0 {
			r.sessionDefaults.CommandTimeout = rc.CommandTimeout()
		}
		if rc.IdleTimeout() > 0 {
			r.sessionDefaults.IdleTimeout = rc.IdleTimeout()
		}
	}
	return r, nil
}

func ruleFromConfigString(s string) disclosure.Rule {
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
		return disclosure.Originator
	}
}

// RealmOptions configures one realm added to a Router.
type RealmOptions struct {
	Disclosure     realm.DisclosureRules
	URIValidator   uri.Validator
	CommandTimeout time.Duration
	IdleTimeout    time.Duration
}

// AddRealm creates and registers a realm under name. It is an error to
// add a realm name twice.
func (r *Router) AddRealm(name string, opts RealmOptions) (*realm.Realm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.realms[name]; exists {
		return nil, fmt.Errorf("realm %q already exists", name)
	}

	realmLog := logging.WithRealm(name)
	m := metrics.NewRealm(r.registry, name)

	rlm := realm.New(realm.Config{
		Name:           name,
		Disclosure:     opts.Disclosure,
		URIValidator:   opts.URIValidator,
		Logger:         realmLog,
		CommandTimeout: opts.CommandTimeout,
		IdleTimeout:    opts.IdleTimeout,
		Metrics:        m,
	})
	r.realms[name] = rlm
	return rlm, nil
}

// Realm returns the realm registered under name.
func (r *Router) Realm(name string) (*realm.Realm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rlm, ok := r.realms[name]
	return rlm, ok
}

// Registry exposes the Router's Prometheus registry for embedders that
// want to serve /metrics themselves.
func (r *Router) Registry() *prometheus.Registry { return r.registry }

// lookup adapts Router.Realm to transport.RealmLookup.
func (r *Router) lookup(name string) (*realm.Realm, bool) { return r.Realm(name) }

// Connect creates a new in-process connection to the router: a fresh
// transport.DirectTransport pair, one end wired into a *transport.Conn
// that will route HELLO/SUBSCRIBE/PUBLISH/etc into whichever realm the
// peer's HELLO names, and the other end handed back to the caller to
// drive as a WAMP client.
func (r *Router) Connect() (client *transport.DirectTransport) {
	serverSide, clientSide := transport.NewDirectPair()
	sessCfg := r.sessionDefaults
	sessCfg.Logger = r.log
	transport.NewConn(serverSide, r.codec, sessCfg, r.lookup)
	return clientSide
}

// Codec returns the wire codec this Router encodes/decodes with.
func (r *Router) Codec() wampmsg.Codec { return r.codec }

// Close shuts down every realm's strand goroutine.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rlm := range r.realms {
		rlm.Close()
	}
}
