package security

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorExportsRecorderState(t *testing.T) {
	rec := NewRecorder()
	rec.Log(EventSQLInjection, info("1.2.3.4"), SeverityCritical, nil)
	rec.Log(EventAuthFailure, info("1.2.3.5"), SeverityMedium, nil)

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(NewCollector(rec, nil)))

	families, err := registry.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["tracechain_security_events_total"])
	assert.Equal(t, 1.0, values["tracechain_security_sql_injection_attempts_total"])
	assert.Equal(t, 1.0, values["tracechain_security_failed_auth_attempts_total"])
	assert.Equal(t, 1.0, values["tracechain_security_suspicious_ips"])
	assert.Equal(t, 2.0, values["tracechain_security_stored_events"])
	assert.Equal(t, 65.0, values["tracechain_security_health_score"])
}
