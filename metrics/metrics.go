// Package metrics exposes prometheus collectors for signing, verification,
// decryption and gateway round trips.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alipay_sdk"

// Collectors groups every metric the client records. A nil *Collectors is
// valid and records nothing.
type Collectors struct {
	signatures       *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	decryptFailures  prometheus.Counter
	replayDetections prometheus.Counter
	gatewayRequests  *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
}

func New() *Collectors {
	return &Collectors{
		signatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signatures_total",
			Help:      "Total signatures produced by protocol and scheme.",
		}, []string{"protocol", "scheme"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Total signature verifications by protocol and result.",
		}, []string{"protocol", "result"}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_failures_total",
			Help:      "Total gateway responses whose encrypted content could not be decrypted.",
		}),
		replayDetections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_detected_total",
			Help:      "Total V3 callbacks rejected because their nonce was already seen.",
		}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Total gateway requests by protocol and outcome.",
		}, []string{"protocol", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "A histogram of gateway round trip durations, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"protocol", "outcome"}),
	}
}

// Register adds every collector to registry.
func (c *Collectors) Register(registry prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		c.signatures,
		c.verifications,
		c.decryptFailures,
		c.replayDetections,
		c.gatewayRequests,
		c.gatewayLatency,
	} {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collectors) RecordSignature(protocol string, scheme string) {
	if c == nil {
		return
	}
	c.signatures.WithLabelValues(label(protocol), label(scheme)).Inc()
}

func (c *Collectors) RecordVerification(protocol string, ok bool) {
	if c == nil {
		return
	}
	result := "fail"
	if ok {
		result = "ok"
	}
	c.verifications.WithLabelValues(label(protocol), result).Inc()
}

func (c *Collectors) RecordDecryptFailure() {
	if c == nil {
		return
	}
	c.decryptFailures.Inc()
}

func (c *Collectors) RecordReplay() {
	if c == nil {
		return
	}
	c.replayDetections.Inc()
}

func (c *Collectors) ObserveGateway(protocol string, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.gatewayRequests.WithLabelValues(label(protocol), label(outcome)).Inc()
	c.gatewayLatency.WithLabelValues(label(protocol), label(outcome)).Observe(duration.Seconds())
}

func label(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
