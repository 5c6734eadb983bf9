package dataset

import (
	"context"

	"linscore/internal/score"
)

// Repository archives scoring results.
type Repository interface {
	Append(ctx context.Context, runID string, table *score.ScoresTable) error
	Close() error
}
