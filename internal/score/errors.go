package score

import (
	"errors"
	"fmt"
)

// ErrEmptyWeights is returned when a weights table has no rows.
var ErrEmptyWeights = errors.New("weights table is empty")

// ZeroWeightsError is returned when the weights of a scope sum to (approximately) zero.
// Normalizing by such a sum is undefined, so the scope cannot be scored.
type ZeroWeightsError struct {
	// Scope is "global" or the tag name.
	Scope string
	// Sum is the offending weight sum.
	Sum float64
}

func (e *ZeroWeightsError) Error() string {
	return fmt.Sprintf("weights of scope %q sum to zero (%g)", e.Scope, e.Sum)
}

func NewZeroWeightsError(scope string, sum float64) *ZeroWeightsError {
	return &ZeroWeightsError{Scope: scope, Sum: sum}
}

// ConfigurationMismatchError signals that a column the computation needs is absent
// from the features table: either a weighted feature or the primary key.
// A present column with null values is not a mismatch.
type ConfigurationMismatchError struct {
	// Scope is "global" or the tag name. Empty when the primary key is missing.
	Scope string
	// Column is the missing column name.
	Column string
}

func (e *ConfigurationMismatchError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("primary key column %q is missing from features table", e.Column)
	}
	return fmt.Sprintf("scope %q: feature %q is missing from features table", e.Scope, e.Column)
}

func NewConfigurationMismatchError(scope, column string) *ConfigurationMismatchError {
	return &ConfigurationMismatchError{Scope: scope, Column: column}
}

// UnknownTagError is returned when a tag scope is requested for a tag
// that no weights row carries.
type UnknownTagError struct {
	Tag string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("tag %q not found in weights", e.Tag)
}

func NewUnknownTagError(tag string) *UnknownTagError {
	return &UnknownTagError{Tag: tag}
}

// DuplicateFeatureError is returned when a feature is listed twice for the same tag.
type DuplicateFeatureError struct {
	Feature string
	Tag     string
}

func (e *DuplicateFeatureError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("feature %q is listed more than once without a tag", e.Feature)
	}
	return fmt.Sprintf("feature %q is listed more than once for tag %q", e.Feature, e.Tag)
}

func NewDuplicateFeatureError(feature, tag string) *DuplicateFeatureError {
	return &DuplicateFeatureError{Feature: feature, Tag: tag}
}

// ReservedTagError is returned when a weights row uses the global scope name as its tag.
// Its score column would collide with the global score column.
type ReservedTagError struct {
	Feature string
	Tag     string
}

func (e *ReservedTagError) Error() string {
	return fmt.Sprintf("feature %q: tag %q is reserved for the global score", e.Feature, e.Tag)
}

func NewReservedTagError(feature, tag string) *ReservedTagError {
	return &ReservedTagError{Feature: feature, Tag: tag}
}
