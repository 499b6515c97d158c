package vnet

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	routesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vnetorch_routes",
		Help: "Number of VNET routes by installation state.",
	}, []string{"state"})
	nextHopsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vnetorch_nexthops",
		Help: "Number of tunnel next hops in the ASIC.",
	})
	nextHopGroupsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vnetorch_nexthop_groups",
		Help: "Number of next-hop groups in the ASIC.",
	})
	advertisedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vnetorch_advertised_prefixes",
		Help: "Number of prefixes in ADVERTISE_NETWORK_TABLE.",
	})
	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vnetorch_events_total",
		Help: "Events processed by the reconcile loop.",
	}, []string{"kind"})
	eventErrorsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vnetorch_event_errors_total",
		Help: "Events that failed, by error class.",
	}, []string{"class"})
	eventDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vnetorch_event_duration_seconds",
		Help:    "Time taken to apply one event.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
)

func init() {
	prometheus.MustRegister(
		routesGauge,
		nextHopsGauge,
		nextHopGroupsGauge,
		advertisedGauge,
		eventsCounter,
		eventErrorsCounter,
		eventDuration,
	)
}
