// Package metrics holds the Prometheus instrumentation for the transport:
// counters and gauges a node operator scrapes to see channel health,
// request volume, and timeout rates without reading logs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "atomix"

var (
	RequestsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_sent_total",
			Help:      "Number of requests sent, labeled by subject.",
		},
		[]string{"subject"},
	)

	RequestsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_received_total",
			Help:      "Number of requests received, labeled by subject.",
		},
		[]string{"subject"},
	)

	RequestsTimedOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_timed_out_total",
			Help:      "Number of pending requests failed by the sweeper, labeled by subject.",
		},
		[]string{"subject"},
	)

	HandlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Number of handler invocations that returned or panicked with an error, labeled by subject.",
		},
		[]string{"subject"},
	)

	ChannelsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_open",
			Help:      "Number of currently open inbound (accepted) remote channels.",
		},
	)

	PendingCallbacks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_callbacks",
			Help:      "Number of requests awaiting a reply across all channels.",
		},
	)

	PoolEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_evictions_total",
			Help:      "Number of outbound pool slots cleared after their channel closed.",
		},
	)
)

// Register adds every transport metric to the default Prometheus
// registry. Safe to call more than once, e.g. across multiple Service
// instances in the same process during tests: collectors already
// registered are left alone rather than panicking.
func Register() {
	for _, c := range []prometheus.Collector{
		RequestsSent,
		RequestsReceived,
		RequestsTimedOut,
		HandlerErrors,
		ChannelsOpen,
		PendingCallbacks,
		PoolEvictions,
	} {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
