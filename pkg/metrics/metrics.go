// Package metrics exposes the node's prometheus collectors. Everything
// registers against the default registry; pkg/api serves it on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "seaport_gossip"

var (
	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "admissions_total",
		Help:      "Order admissions by outcome (new, known, invalid, rejected, error).",
	}, []string{"outcome"})

	GossipMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gossip",
		Name:      "messages_total",
		Help:      "Received gossip messages by event kind and acceptance.",
	}, []string{"event", "acceptance"})

	WireRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wire",
		Name:      "requests_total",
		Help:      "Wire-protocol messages by opcode and direction.",
	}, []string{"opcode", "direction"})

	ChainRPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "rpc_duration_seconds",
		Help:      "JSON-RPC round-trip latency by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	OrdersStored = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "orders",
		Help:      "Orders currently persisted.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
