package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { Register(reg) })

	SourceRequests.WithLabelValues("nearblocks", OutcomeSuccess).Inc()
	CacheLookups.WithLabelValues(TierMemory, ResultHit).Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "nearpulse_source_requests_total")
	assert.Contains(t, names, "nearpulse_cache_lookups_total")
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(ActivitiesClassified.WithLabelValues("swap"))
	ActivitiesClassified.WithLabelValues("swap").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ActivitiesClassified.WithLabelValues("swap")))
}

func TestMustRegisterMetrics_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegisterMetrics()
		MustRegisterMetrics()
	})
}
