// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "openbook"

// =============================================================================
// TRANSCRIPT METRICS
// =============================================================================

var (
	FrameRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transcript",
		Name:      "frame_recomputes_total",
		Help:      "Window recomputes, by cause.",
	}, []string{"cause"})

	StaleMeasurements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transcript",
		Name:      "stale_measurements_total",
		Help:      "Height measurements that arrived for an older generation.",
	})

	MountedItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcript",
		Name:      "mounted_items",
		Help:      "Items mounted in the latest frame.",
	})
)

// =============================================================================
// PERSISTENCE METRICS
// =============================================================================

var (
	QueueEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persist",
		Name:      "enqueued_total",
		Help:      "Payloads handed to the persistence queue.",
	})

	QueueCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persist",
		Name:      "coalesced_total",
		Help:      "Pending payloads replaced before they were written.",
	})

	QueueWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persist",
		Name:      "writes_total",
		Help:      "Backend writes, by result (ok, retry, failed).",
	}, []string{"result"})

	QueuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persist",
		Name:      "pending_keys",
		Help:      "Keys with a payload waiting to be written.",
	})

	QueueWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "persist",
		Name:      "write_duration_seconds",
		Help:      "Backend write duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
)

// ObserveWrite records a finished backend write.
func ObserveWrite(result string, d time.Duration) {
	QueueWrites.WithLabelValues(result).Inc()
	QueueWriteDuration.Observe(d.Seconds())
}
