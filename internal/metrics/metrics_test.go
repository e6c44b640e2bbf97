package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ObserveEvaluation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveEvaluation("threshold", 0.002, nil)
	m.ObserveEvaluation("pattern", 0.01, assertErr())

	assert.Equal(t, float64(1), testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("threshold")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EvaluationErrors.WithLabelValues("pattern")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.EvaluationErrors.WithLabelValues("threshold")))
}

func TestRegistry_GaugesSettable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RulesByKind.WithLabelValues("threshold").Set(3)
	m.AutoconfigBacklog.Set(2)

	require.Equal(t, float64(3), testutil.ToFloat64(m.RulesByKind.WithLabelValues("threshold")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.AutoconfigBacklog))
}

func assertErr() error {
	return errBoom
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
