package digest

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts digest activity. A nil *Metrics records nothing.
type Metrics struct {
	messages   *prometheus.CounterVec
	recipients prometheus.Counter
	items      prometheus.Gauge
}

// NewMetrics creates the digest metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailing",
			Subsystem: "digest",
			Name:      "messages_total",
			Help:      "Digest messages by outcome (sent, failed, skipped).",
		}, []string{"outcome"}),
		recipients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mailing",
			Subsystem: "digest",
			Name:      "recipients_total",
			Help:      "Recipients addressed by sent digest messages.",
		}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mailing",
			Subsystem: "digest",
			Name:      "last_run_items",
			Help:      "Items collected by the most recent digest run.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.recipients, m.items)
	}
	return m
}

func (m *Metrics) observe(outcome string, recipients int) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
	if outcome == "sent" {
		m.recipients.Add(float64(recipients))
	}
}

func (m *Metrics) setItems(n int) {
	if m == nil {
		return
	}
	m.items.Set(float64(n))
}
