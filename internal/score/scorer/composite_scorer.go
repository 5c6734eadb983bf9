package scorer

import (
	"context"
	"errors"

	"linscore/internal/score"
)

// CompositeScorer runs several scorers over the same features table and joins their
// columns into one table, in scorer order. The first failing scorer fails the whole call.
//
// CompositeScorer is safe for concurrent use if all nested scorers are.
type CompositeScorer struct {
	scorers []score.Scorer
}

// Score returns the merged tables of all scorers.
func (cs *CompositeScorer) Score(ctx context.Context, features *score.FeaturesTable) (*score.ScoresTable, error) {
	if len(cs.scorers) == 0 {
		return nil, errors.New("composite scorer: no scorers")
	}

	var result *score.ScoresTable
	for _, s := range cs.scorers {
		table, err := s.Score(ctx, features)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = table
			continue
		}
		result, err = result.Merge(table)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// NewCompositeScorer creates a composite of scorers.
func NewCompositeScorer(scorers ...score.Scorer) *CompositeScorer {
	return &CompositeScorer{scorers: scorers}
}
