package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voicegate"

var (
	registered atomic.Bool

	MessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "messages",
			Help:      "Inbound signaling messages by type and outcome.",
		},
		[]string{"type", "status"},
	)

	DeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "delivery_failures",
			Help:      "Outbound messages that could not be queued for a recipient.",
		},
		[]string{"reason"},
	)

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "signal",
		Name:      "connections",
	})

	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "rooms",
	})

	EndpointsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "endpoints",
	})

	PipelineOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "pipeline_operations",
		},
		[]string{"op"},
	)

	OfferDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "signal",
		Name:      "offer_seconds",
		Help:      "Time from offer receipt to the engine's answer.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// Register adds all collectors to reg once; later calls are no-ops.
func Register(reg prometheus.Registerer) error {
	if registered.Swap(true) {
		return nil
	}
	for _, c := range []prometheus.Collector{
		MessageCounter,
		DeliveryFailures,
		ConnectionsActive,
		RoomsActive,
		EndpointsActive,
		PipelineOps,
		OfferDuration,
	} {
		if err := reg.Register(c); err != nil {
			registered.Store(false)
			return err
		}
	}
	return nil
}
