package score

import (
	"context"
)

// Scorer turns a features table into a scores table.
type Scorer interface {
	Score(ctx context.Context, features *FeaturesTable) (*ScoresTable, error)
}
