package scorer

import (
	"context"

	"linscore/internal/score"
)

// LinearScorer scores features tables against a fixed weights table.
// Every call builds a fresh score.LinearScore, so concurrent calls are safe.
type LinearScorer struct {
	weights    score.WeightsTable
	primaryKey string
	opts       []score.Option
}

// Score computes the global and per-tag linear scores of features.
func (ls *LinearScorer) Score(ctx context.Context, features *score.FeaturesTable) (*score.ScoresTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	calculator, err := score.NewLinearScore(ls.weights, features, ls.primaryKey, ls.opts...)
	if err != nil {
		return nil, err
	}

	return calculator.ComputeScores()
}

// NewLinearScorer validates weights and returns a scorer keyed by primaryKey.
func NewLinearScorer(weights score.WeightsTable, primaryKey string, opts ...score.Option) (*LinearScorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	scorer := LinearScorer{
		weights:    weights,
		primaryKey: primaryKey,
		opts:       opts,
	}
	return &scorer, nil
}
