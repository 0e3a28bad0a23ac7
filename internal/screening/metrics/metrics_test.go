package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveProviderCall("credit", "ok", 120*time.Millisecond)
	m.ObserveProviderCall("credit", "ok", 80*time.Millisecond)
	m.IncrementRetry("employment")
	m.IncrementRejected("duplicate")
	m.SetActive(3)
	m.IncrementDecision("approve", "LOW")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderResults.WithLabelValues("credit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRetries.WithLabelValues("employment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksRejected.WithLabelValues("duplicate")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChecksActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("approve", "LOW")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveProviderCall("credit", "ok", time.Second)
		m.IncrementRetry("credit")
		m.SetActive(1)
		m.IncrementRejected("capacity")
		m.ObserveFinished("basic", "COMPLETED", time.Second)
		m.IncrementDecision("decline", "VERY_HIGH")
		m.IncrementPublication("file", "ok")
	})
}
