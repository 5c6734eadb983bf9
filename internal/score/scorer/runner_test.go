package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linscore/internal/metrics"
	"linscore/internal/score"
)

type recordingSink struct {
	runs []string
	err  error
}

func (s *recordingSink) Append(_ context.Context, runID string, _ *score.ScoresTable) error {
	s.runs = append(s.runs, runID)
	return s.err
}

func TestRunner_Run(t *testing.T) {
	linear, err := NewLinearScorer(transportWeights, "service_id")
	require.NoError(t, err)
	m := metrics.New()
	failing := &recordingSink{err: errors.New("disk full")}
	sink := &recordingSink{}

	runID, table, err := NewRunner(linear, m, failing, sink).Run(context.Background(), transportFeatures())
	require.NoError(t, err)

	_, err = uuid.Parse(runID)
	assert.NoError(t, err)
	assert.Len(t, table.Rows, 2)
	assert.Equal(t, []string{runID}, failing.runs)
	assert.Equal(t, []string{runID}, sink.runs, "a failing sink does not stop the others")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringRuns.WithLabelValues(metrics.ResultOK)))
}

func TestRunner_Run_Error(t *testing.T) {
	weights := score.WeightsTable{
		{Feature: "on_time_start", Weight: 1},
		{Feature: "play_pressed", Weight: -1},
	}
	linear, err := NewLinearScorer(weights, "service_id")
	require.NoError(t, err)
	m := metrics.New()
	sink := &recordingSink{}

	_, table, err := NewRunner(linear, m, sink).Run(context.Background(), transportFeatures())
	var zero *score.ZeroWeightsError
	assert.ErrorAs(t, err, &zero)
	assert.Nil(t, table)
	assert.Empty(t, sink.runs)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringRuns.WithLabelValues(metrics.ResultZeroWeights)))
}

func TestRunner_Run_NilMetrics(t *testing.T) {
	linear, err := NewLinearScorer(transportWeights, "service_id")
	require.NoError(t, err)

	_, _, err = NewRunner(linear, nil).Run(context.Background(), transportFeatures())
	assert.NoError(t, err)
}
