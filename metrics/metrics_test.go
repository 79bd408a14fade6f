package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	c := New()
	registry := prometheus.NewRegistry()
	require.NoError(t, c.Register(registry))

	c.RecordSignature("v2", "RSA2")
	c.RecordSignature("v2", "RSA2")
	c.RecordVerification("v3", true)
	c.RecordVerification("v3", false)
	c.RecordDecryptFailure()
	c.RecordReplay()
	c.ObserveGateway("v2", "success", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.signatures.WithLabelValues("v2", "rsa2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.verifications.WithLabelValues("v3", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.verifications.WithLabelValues("v3", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decryptFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.replayDetections))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gatewayRequests.WithLabelValues("v2", "success")))

	count, err := testutil.GatherAndCount(registry, "alipay_sdk_gateway_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterTwiceFails(t *testing.T) {
	c := New()
	registry := prometheus.NewRegistry()
	require.NoError(t, c.Register(registry))
	assert.Error(t, c.Register(registry))
}

func TestNilCollectorsAreNoop(t *testing.T) {
	var c *Collectors
	c.RecordSignature("v2", "RSA")
	c.RecordVerification("v2", true)
	c.RecordDecryptFailure()
	c.RecordReplay()
	c.ObserveGateway("v2", "success", time.Second)
}

func TestLabelNormalization(t *testing.T) {
	assert.Equal(t, "unknown", label("  "))
	assert.Equal(t, "rsa2", label("RSA2"))
}
