// Package metrics exposes the marketplace's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "leadmarket"

// LeadMetrics counts lead funnel outcomes and revenue.
type LeadMetrics struct {
	generated   *prometheus.CounterVec
	scores      *prometheus.HistogramVec
	purchased   *prometheus.CounterVec
	revenue     *prometheus.CounterVec
	quotes      *prometheus.CounterVec
	conversions *prometheus.CounterVec
	convValue   *prometheus.CounterVec
	lost        *prometheus.CounterVec
	expired     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func NewLeadMetrics(reg prometheus.Registerer) *LeadMetrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      name,
			Help:      help,
		}, labels)
	}
	m := &LeadMetrics{
		generated: counter("generated_total", "Leads generated from assessments", "lead_type"),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "score",
			Help:      "Distribution of lead scores at generation",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}, []string{"lead_type"}),
		purchased:   counter("purchased_total", "Leads purchased by contractors", "lead_type"),
		revenue:     counter("purchase_revenue_dollars_total", "Lead purchase revenue in dollars", "lead_type"),
		quotes:      counter("quotes_total", "Quotes provided to homeowners", "lead_type"),
		conversions: counter("conversions_total", "Leads won by contractors", "lead_type"),
		convValue:   counter("conversion_value_dollars_total", "Estimated project value of won leads", "lead_type"),
		lost:        counter("lost_total", "Leads lost by contractors", "lead_type"),
		expired:     counter("expired_total", "Leads that expired", "lead_type"),
		transitions: counter("status_transitions_total", "Lead lifecycle transitions", "from", "to"),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.generated, m.scores, m.purchased, m.revenue, m.quotes,
		m.conversions, m.convValue, m.lost, m.expired, m.transitions)
	return m
}

func (m *LeadMetrics) LeadGenerated(leadType string, score int) {
	if m == nil {
		return
	}
	m.generated.WithLabelValues(leadType).Inc()
	m.scores.WithLabelValues(leadType).Observe(float64(score))
}

func (m *LeadMetrics) LeadPurchased(leadType string, amount float64) {
	if m == nil {
		return
	}
	m.purchased.WithLabelValues(leadType).Inc()
	m.revenue.WithLabelValues(leadType).Add(amount)
}

func (m *LeadMetrics) QuoteProvided(leadType string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(leadType).Inc()
}

func (m *LeadMetrics) Conversion(leadType string, value float64) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(leadType).Inc()
	if value > 0 {
		m.convValue.WithLabelValues(leadType).Add(value)
	}
}

func (m *LeadMetrics) LeadLost(leadType string) {
	if m == nil {
		return
	}
	m.lost.WithLabelValues(leadType).Inc()
}

func (m *LeadMetrics) LeadExpired(leadType string) {
	if m == nil {
		return
	}
	m.expired.WithLabelValues(leadType).Inc()
}

func (m *LeadMetrics) StatusChanged(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// HTTPMetrics exposes request counters and latency per route.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

func (m *HTTPMetrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, status).Inc()
	m.latency.WithLabelValues(method, route).Observe(seconds)
}
