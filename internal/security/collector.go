package security

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes Recorder state to Prometheus at scrape time.
type Collector struct {
	recorder   *Recorder
	dispatcher *Dispatcher

	total        *prometheus.Desc
	blocked      *prometheus.Desc
	suspicious   *prometheus.Desc
	failedAuth   *prometheus.Desc
	rateLimited  *prometheus.Desc
	sqlInjection *prometheus.Desc
	xss          *prometheus.Desc
	suspectIPs   *prometheus.Desc
	stored       *prometheus.Desc
	health       *prometheus.Desc
	dropped      *prometheus.Desc
}

// NewCollector builds a collector over recorder. dispatcher may be nil.
func NewCollector(recorder *Recorder, dispatcher *Dispatcher) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("tracechain_security_"+name, help, nil, nil)
	}
	return &Collector{
		recorder:     recorder,
		dispatcher:   dispatcher,
		total:        desc("events_total", "Security events recorded since process start."),
		blocked:      desc("blocked_requests_total", "BLOCKED_REQUEST events recorded."),
		suspicious:   desc("suspicious_activity_total", "SUSPICIOUS_ACTIVITY events recorded."),
		failedAuth:   desc("failed_auth_attempts_total", "AUTH_FAILURE events recorded."),
		rateLimited:  desc("rate_limit_hits_total", "RATE_LIMIT_EXCEEDED events recorded."),
		sqlInjection: desc("sql_injection_attempts_total", "SQL_INJECTION_ATTEMPT events recorded."),
		xss:          desc("xss_attempts_total", "XSS_ATTEMPT events recorded."),
		suspectIPs:   desc("suspicious_ips", "Distinct source IPs seen with high or critical events."),
		stored:       desc("stored_events", "Events currently held in memory."),
		health:       desc("health_score", "Heuristic security health score (0-100)."),
		dropped:      desc("events_dropped_total", "Events dropped because the sink buffer was full."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.blocked
	ch <- c.suspicious
	ch <- c.failedAuth
	ch <- c.rateLimited
	ch <- c.sqlInjection
	ch <- c.xss
	ch <- c.suspectIPs
	ch <- c.stored
	ch <- c.health
	ch <- c.dropped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.recorder == nil {
		return
	}
	m := c.recorder.Metrics()
	counter := func(desc *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
	counter(c.total, m.TotalRequests)
	counter(c.blocked, m.BlockedRequests)
	counter(c.suspicious, m.SuspiciousActivity)
	counter(c.failedAuth, m.FailedAuthAttempts)
	counter(c.rateLimited, m.RateLimitHits)
	counter(c.sqlInjection, m.SQLInjectionAttempts)
	counter(c.xss, m.XSSAttempts)
	ch <- prometheus.MustNewConstMetric(c.suspectIPs, prometheus.GaugeValue, float64(len(m.SuspiciousIPs)))
	ch <- prometheus.MustNewConstMetric(c.stored, prometheus.GaugeValue, float64(c.recorder.Len()))
	ch <- prometheus.MustNewConstMetric(c.health, prometheus.GaugeValue, float64(c.recorder.HealthScore()))
	var dropped uint64
	if c.dispatcher != nil {
		dropped = c.dispatcher.Dropped()
	}
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(dropped))
}

var _ prometheus.Collector = (*Collector)(nil)
