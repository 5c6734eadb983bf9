package score

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// GlobalScope names the scope made of every weights row.
	GlobalScope = "global"
	// ColumnPrefix prefixes every score column of a scores table.
	ColumnPrefix = "score_"
	// DefaultTolerance is the absolute tolerance under which a weight sum counts as zero.
	DefaultTolerance = 1e-8
)

// ScoreColumn returns the scores table column of a scope; the empty tag is the global scope.
func ScoreColumn(tag string) string {
	return ColumnPrefix + scopeName(tag)
}

func scopeName(tag string) string {
	if tag == "" {
		return GlobalScope
	}
	return tag
}

// Option configures a LinearScore.
type Option func(*LinearScore)

// WithMissingFeaturesAsZero treats a weighted feature that is not a column of the
// features table as an entirely null column instead of failing with
// ConfigurationMismatchError.
func WithMissingFeaturesAsZero() Option {
	return func(ls *LinearScore) {
		ls.missingAsZero = true
	}
}

// WithTolerance overrides DefaultTolerance.
func WithTolerance(eps float64) Option {
	return func(ls *LinearScore) {
		ls.tolerance = math.Abs(eps)
	}
}

// LinearScore computes global and per-tag linear scores: for every entity of the
// features table, the weighted sum of its features divided by the sum of the weights
// of the scope.
//
// The normalizer is the signed sum of the scope weights, not the sum of their
// absolute values. A scope with mixed signs whose sum is small but above the
// tolerance can produce scores of inverted sign.
//
// LinearScore keeps no state between calls and never modifies its inputs.
type LinearScore struct {
	weights    WeightsTable
	features   *FeaturesTable
	primaryKey string

	tolerance     float64
	missingAsZero bool
}

// NewLinearScore validates the weights table and checks that primaryKey is a column
// of the features table.
func NewLinearScore(weights WeightsTable, features *FeaturesTable, primaryKey string, opts ...Option) (*LinearScore, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	if !features.HasColumn(primaryKey) {
		return nil, NewConfigurationMismatchError("", primaryKey)
	}

	ls := LinearScore{
		weights:    weights,
		features:   features,
		primaryKey: primaryKey,
		tolerance:  DefaultTolerance,
	}
	for _, opt := range opts {
		opt(&ls)
	}

	return &ls, nil
}

// ComputeScores returns a table with the primary key, score_global and one
// score_<tag> column per distinct tag, in first-seen tag order.
// Any failing scope fails the whole computation.
func (ls *LinearScore) ComputeScores() (*ScoresTable, error) {
	slog.Debug("Start calculating linear scores", "entities", ls.features.Len(), "weights", len(ls.weights))

	if sum := ls.weights.Sum(); ls.isZero(sum) {
		slog.Error("The weight vector cannot be all zeroes", "sum", sum)
		return nil, NewZeroWeightsError(GlobalScope, sum)
	}

	tags := ls.weights.Tags()
	scopes := append([]string{""}, tags...)

	columns := make([]string, len(scopes))
	scores := make([][]float64, len(scopes))
	for i, tag := range scopes {
		values, err := ls.ScoreScope(tag)
		if err != nil {
			return nil, err
		}
		columns[i] = ScoreColumn(tag)
		scores[i] = values
	}

	table := ScoresTable{
		PrimaryKey: ls.primaryKey,
		Columns:    columns,
		Rows:       make([]ScoreRow, ls.features.Len()),
	}
	for i, row := range ls.features.Rows {
		values := make([]float64, len(scopes))
		for j := range scopes {
			values[j] = scores[j][i]
		}
		table.Rows[i] = ScoreRow{Key: row[ls.primaryKey], Values: values}
	}

	slog.Debug("Finish calculating linear scores", "columns", columns)

	return &table, nil
}

// ScoreScope scores every entity against one scope and returns the scores in row order.
// The empty tag selects the global scope.
func (ls *LinearScore) ScoreScope(tag string) ([]float64, error) {
	if tag != "" && !ls.weights.HasTag(tag) {
		return nil, NewUnknownTagError(tag)
	}

	name := scopeName(tag)
	slog.Debug("Calculating linear scores", "scope", name)

	scope := ls.weights.Scope(tag)
	norm := scope.Sum()
	if ls.isZero(norm) {
		slog.Error("The weight vector cannot be all zeroes", "scope", name, "sum", norm)
		return nil, NewZeroWeightsError(name, norm)
	}

	// Column j of the feature matrix is the feature named by weights row j.
	for _, w := range scope {
		if !ls.missingAsZero && !ls.features.HasColumn(w.Feature) {
			return nil, NewConfigurationMismatchError(name, w.Feature)
		}
	}

	n := ls.features.Len()
	if n == 0 {
		return []float64{}, nil
	}

	x := mat.NewDense(n, len(scope), nil)
	for j, w := range scope {
		if !ls.features.HasColumn(w.Feature) {
			continue
		}
		for i := 0; i < n; i++ {
			v, err := ls.features.Value(i, w.Feature)
			if err != nil {
				return nil, err
			}
			x.Set(i, j, v)
		}
	}

	var dot mat.VecDense
	dot.MulVec(x, mat.NewVecDense(len(scope), scope.values()))

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = dot.AtVec(i) / norm
	}
	return scores, nil
}

func (ls *LinearScore) isZero(sum float64) bool {
	return math.Abs(sum) <= ls.tolerance
}
