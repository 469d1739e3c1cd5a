package audiomix

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the session collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	joinRequests     *prometheus.CounterVec
	participants     prometheus.Gauge
	engineErrors     *prometheus.CounterVec
	engineWarnings   prometheus.Counter
	volumeReports    prometheus.Counter
	callbacksDropped prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		joinRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "audiomix",
			Name:      "join_requests_total",
			Help:      "Join requests by synchronous engine result.",
		}, []string{"result"}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "audiomix",
			Name:      "participants",
			Help:      "Entries currently in the session roster.",
		}),
		engineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "audiomix",
			Name:      "engine_errors_total",
			Help:      "Asynchronous engine errors by code.",
		}, []string{"code"}),
		engineWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "audiomix",
			Name:      "engine_warnings_total",
			Help:      "Asynchronous engine warnings.",
		}),
		volumeReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "audiomix",
			Name:      "volume_reports_total",
			Help:      "Volume indication reports received.",
		}),
		callbacksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "audiomix",
			Name:      "callbacks_dropped_total",
			Help:      "Engine notifications dropped after teardown started.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.joinRequests, m.participants, m.engineErrors,
		m.engineWarnings, m.volumeReports, m.callbacksDropped,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) joinRequested(result int) {
	if m == nil {
		return
	}
	label := "accepted"
	if result != 0 {
		label = "rejected"
	}
	m.joinRequests.WithLabelValues(label).Inc()
}

func (m *Metrics) setParticipants(n int) {
	if m == nil {
		return
	}
	m.participants.Set(float64(n))
}

func (m *Metrics) engineError(code ErrorCode) {
	if m == nil {
		return
	}
	m.engineErrors.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

func (m *Metrics) engineWarning() {
	if m == nil {
		return
	}
	m.engineWarnings.Inc()
}

func (m *Metrics) volumeReport() {
	if m == nil {
		return
	}
	m.volumeReports.Inc()
}

func (m *Metrics) callbackDropped() {
	if m == nil {
		return
	}
	m.callbacksDropped.Inc()
}
