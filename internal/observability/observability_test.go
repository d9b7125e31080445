package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("dev", "debug")
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = NewLogger("prod", "")
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger("prod", "loud")
	assert.Error(t, err)
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RetrievalOutcomes.WithLabelValues(OutcomeUninitialized).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.RetrievalOutcomes.WithLabelValues(OutcomeUninitialized)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RetrievalOutcomes.WithLabelValues(OutcomeUninitialized)))
}
