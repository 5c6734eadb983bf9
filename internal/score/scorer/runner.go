package scorer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"linscore/internal/metrics"
	"linscore/internal/score"
)

// Sink records the result of a scoring run.
type Sink interface {
	Append(ctx context.Context, runID string, table *score.ScoresTable) error
}

// Runner executes scoring runs: it tags each run with a UUID, observes it in the
// metrics and hands successful results to every sink. A failing sink is logged and
// does not fail the run.
type Runner struct {
	scorer  score.Scorer
	metrics *metrics.Metrics
	sinks   []Sink
}

// Run scores features and returns the run id with the scores table.
func (r *Runner) Run(ctx context.Context, features *score.FeaturesTable) (string, *score.ScoresTable, error) {
	runID := uuid.NewString()
	start := time.Now()

	table, err := r.scorer.Score(ctx, features)
	r.metrics.ObserveRun(time.Since(start), err)
	if err != nil {
		slog.Warn("Scoring run failed", "run", runID, "result", metrics.Result(err), "error", err)
		return runID, nil, err
	}

	for _, sink := range r.sinks {
		if err := sink.Append(ctx, runID, table); err != nil {
			slog.Error("Unable to record scores", "run", runID, "error", err)
		}
	}

	slog.Debug("Scoring run finished", "run", runID, "entities", len(table.Rows), "columns", table.Columns)
	return runID, table, nil
}

// NewRunner creates a runner around s. m may be nil.
func NewRunner(s score.Scorer, m *metrics.Metrics, sinks ...Sink) *Runner {
	return &Runner{scorer: s, metrics: m, sinks: sinks}
}
