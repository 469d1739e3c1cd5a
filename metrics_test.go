package audiomix

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.joinRequested(0)
	m.joinRequested(-2)
	m.setParticipants(3)
	m.volumeReport()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.joinRequests.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.joinRequests.WithLabelValues("rejected")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.participants))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.volumeReports))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "registering twice")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.joinRequested(0)
		m.setParticipants(1)
		m.engineError(ErrCodeFailed)
		m.engineWarning()
		m.volumeReport()
		m.callbackDropped()
	})
}
