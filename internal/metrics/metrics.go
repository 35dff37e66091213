// Package metrics exposes per-realm Prometheus gauges and counters, an
// additive observability layer the realm updates at the same points it
// would emit an access-log entry. It never gates a routing decision.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Realm holds the metric vectors for one realm, all labeled with the
// realm's name so a single registry can serve every realm in a router.
type Realm struct {
	Sessions          prometheus.Gauge
	Subscriptions     prometheus.Gauge
	Registrations     prometheus.Gauge
	InflightCalls     prometheus.Gauge
	PublicationsTotal prometheus.Counter
	InvocationsTotal  prometheus.Counter
	ViolationsTotal   prometheus.Counter
}

// NewRealm creates and registers the metric vectors for realmName
// against reg. Passing prometheus.NewRegistry() per router keeps realm
// metrics isolated in tests.
func NewRealm(reg prometheus.Registerer, realmName string) *Realm {
	labels := prometheus.Labels{"realm": realmName}
	m := &Realm{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "wampcore_sessions",
			Help:        "Currently joined sessions.",
			ConstLabels: labels,
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "wampcore_subscriptions",
			Help:        "Currently active subscriptions.",
			ConstLabels: labels,
		}),
		Registrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "wampcore_registrations",
			Help:        "Currently active procedure registrations.",
			ConstLabels: labels,
		}),
		InflightCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "wampcore_inflight_calls",
			Help:        "Calls awaiting a YIELD or ERROR.",
			ConstLabels: labels,
		}),
		PublicationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "wampcore_publications_total",
			Help:        "PUBLISH requests routed.",
			ConstLabels: labels,
		}),
		InvocationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "wampcore_invocations_total",
			Help:        "CALL requests routed to a callee or answered by a meta-procedure.",
			ConstLabels: labels,
		}),
		ViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "wampcore_protocol_violations_total",
			Help:        "Sessions aborted for a protocol violation.",
			ConstLabels: labels,
		}),
	}
	reg.MustRegister(m.Sessions, m.Subscriptions, m.Registrations, m.InflightCalls,
		m.PublicationsTotal, m.InvocationsTotal, m.ViolationsTotal)
	return m
}
