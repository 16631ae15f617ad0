package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CascadeStageFailures.WithLabelValues("students").Inc()
	m.DuplicatesRemoved.Add(2)

	assert.InDelta(t, 1, testutil.ToFloat64(m.CascadeStageFailures.WithLabelValues("students")), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.DuplicatesRemoved), 1e-9)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) }, "同一 Registry 重复注册应 panic")
}
