// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_client"

// Metrics holds the Prometheus collectors of a client. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// transport
	TransportState       *prometheus.GaugeVec
	TransportTransitions *prometheus.CounterVec
	EngineEvents         *prometheus.CounterVec
	DeviceErrors         *prometheus.CounterVec
	ConnectDuration      prometheus.Histogram

	// dispatcher
	MessagesDispatched prometheus.Counter
	MessagesResolved   prometheus.Counter
	MessagesRejected   prometheus.Counter
	MessagesExpired    prometheus.Counter
	PendingRequests    prometheus.Gauge
	RequestDuration    prometheus.Histogram

	// audio level observer
	AudioLevel          *prometheus.GaugeVec
	StatsReadFailures   prometheus.Counter
	ObserverBreakerTrip prometheus.Counter

	// inbound protocol messages by type
	MessagesReceived *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransportState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_state",
			Help:      "Current transport state, 1 for the active state",
		}, []string{"state"}),
		TransportTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_transitions_total",
			Help:      "Total number of transport state transitions",
		}, []string{"from", "to"}),
		EngineEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_events_total",
			Help:      "Total number of raw engine events handled",
		}, []string{"event"}),
		DeviceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_errors_total",
			Help:      "Total number of classified device errors",
		}, []string{"type"}),
		ConnectDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Time spent joining the engine",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		MessagesDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dispatched_total",
			Help:      "Total number of request messages dispatched",
		}),
		MessagesResolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_resolved_total",
			Help:      "Total number of requests resolved by a reply",
		}),
		MessagesRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Total number of requests rejected by an error-response or disconnect",
		}),
		MessagesExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_expired_total",
			Help:      "Total number of requests that timed out",
		}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Current number of in-flight requests",
		}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Round trip time of resolved requests",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),

		AudioLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_level",
			Help:      "Last sampled audio level",
		}, []string{"source"}),
		StatsReadFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_read_failures_total",
			Help:      "Total number of failed statistics reads",
		}),
		ObserverBreakerTrip: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_observer_breaker_trips_total",
			Help:      "Total number of times the audio observer stopped itself",
		}),

		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound protocol messages by type",
		}, []string{"type"}),
	}
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.TransportTransitions.WithLabelValues(from, to).Inc()
	m.TransportState.WithLabelValues(from).Set(0)
	m.TransportState.WithLabelValues(to).Set(1)
}

func (m *Metrics) ObserveEngineEvent(event string) {
	if m == nil {
		return
	}
	m.EngineEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveDeviceError(kind string) {
	if m == nil {
		return
	}
	m.DeviceErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveConnect(d time.Duration) {
	if m == nil {
		return
	}
	m.ConnectDuration.Observe(d.Seconds())
}

func (m *Metrics) RequestDispatched() {
	if m == nil {
		return
	}
	m.MessagesDispatched.Inc()
	m.PendingRequests.Inc()
}

func (m *Metrics) RequestResolved(rtt time.Duration) {
	if m == nil {
		return
	}
	m.MessagesResolved.Inc()
	m.PendingRequests.Dec()
	m.RequestDuration.Observe(rtt.Seconds())
}

func (m *Metrics) RequestRejected() {
	if m == nil {
		return
	}
	m.MessagesRejected.Inc()
	m.PendingRequests.Dec()
}

func (m *Metrics) RequestExpired() {
	if m == nil {
		return
	}
	m.MessagesExpired.Inc()
	m.PendingRequests.Dec()
}

// RequestDropped accounts for a request that never reached the wire.
func (m *Metrics) RequestDropped() {
	if m == nil {
		return
	}
	m.PendingRequests.Dec()
}

func (m *Metrics) ObserveAudioLevel(source string, level float64) {
	if m == nil {
		return
	}
	m.AudioLevel.WithLabelValues(source).Set(level)
}

func (m *Metrics) ObserveStatsFailure() {
	if m == nil {
		return
	}
	m.StatsReadFailures.Inc()
}

func (m *Metrics) ObserveBreakerTrip() {
	if m == nil {
		return
	}
	m.ObserverBreakerTrip.Inc()
}

func (m *Metrics) ObserveMessage(messageType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(messageType).Inc()
}
