package score

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Weight is one row of a weights table.
// An empty Tag means the feature only takes part in the global score.
type Weight struct {
	Feature string  `json:"feature" yaml:"feature"`
	Weight  float64 `json:"weight" yaml:"weight"`
	Tag     string  `json:"tag,omitempty" yaml:"tag,omitempty"`
}

// WeightsTable is an unordered set of weights rows.
type WeightsTable []Weight

// Validate checks that the table is not empty, that no row is tagged with the
// global scope name and that no feature is listed twice for the same tag.
func (wt WeightsTable) Validate() error {
	if len(wt) == 0 {
		return ErrEmptyWeights
	}

	type featureTag struct{ feature, tag string }
	seen := make(map[featureTag]struct{}, len(wt))
	for _, w := range wt {
		if w.Tag == GlobalScope {
			return NewReservedTagError(w.Feature, w.Tag)
		}
		key := featureTag{w.Feature, w.Tag}
		if _, found := seen[key]; found {
			return NewDuplicateFeatureError(w.Feature, w.Tag)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// Tags returns the distinct non-empty tags in first-seen order.
func (wt WeightsTable) Tags() []string {
	var tags []string
	for _, w := range wt {
		if w.Tag != "" && !slices.Contains(tags, w.Tag) {
			tags = append(tags, w.Tag)
		}
	}
	return tags
}

// HasTag reports whether at least one row carries tag.
func (wt WeightsTable) HasTag(tag string) bool {
	return slices.ContainsFunc(wt, func(w Weight) bool { return w.Tag == tag })
}

// Scope returns the rows of a tag scope. The empty tag selects the global scope,
// which is every row of the table.
func (wt WeightsTable) Scope(tag string) WeightsTable {
	if tag == "" {
		return wt
	}
	scope := make(WeightsTable, 0, len(wt))
	for _, w := range wt {
		if w.Tag == tag {
			scope = append(scope, w)
		}
	}
	return scope
}

// Sum returns the signed sum of the weights.
func (wt WeightsTable) Sum() float64 {
	return floats.Sum(wt.values())
}

func (wt WeightsTable) values() []float64 {
	values := make([]float64, len(wt))
	for i, w := range wt {
		values[i] = w.Weight
	}
	return values
}

// Row is one entity of a features table: the primary key plus feature values.
// A feature is null when its key is absent, nil or NaN.
type Row map[string]any

// FeaturesTable holds one row per entity. Columns lists the columns the table has;
// a feature referenced by weights must be a column even if every value is null.
type FeaturesTable struct {
	Columns []string
	Rows    []Row
}

// NewFeaturesTable builds a table whose columns are the union of the row keys,
// in first-seen order (keys of one row are taken alphabetically).
func NewFeaturesTable(rows []Row) *FeaturesTable {
	table := FeaturesTable{Rows: rows}
	seen := make(map[string]struct{})
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, found := seen[k]; !found {
				seen[k] = struct{}{}
				table.Columns = append(table.Columns, k)
			}
		}
	}
	return &table
}

// HasColumn reports whether name is one of the table columns.
func (ft *FeaturesTable) HasColumn(name string) bool {
	return ft != nil && slices.Contains(ft.Columns, name)
}

// Len returns the number of rows.
func (ft *FeaturesTable) Len() int {
	if ft == nil {
		return 0
	}
	return len(ft.Rows)
}

// Value returns the numeric value of column in row i. Nulls are returned as 0.
func (ft *FeaturesTable) Value(i int, column string) (float64, error) {
	v, err := numeric(ft.Rows[i][column])
	if err != nil {
		return 0, fmt.Errorf("row %d column %q: %w", i, column, err)
	}
	return v, nil
}

func numeric(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}

	if math.IsNaN(f) {
		return 0, nil
	}
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", v)
	}
	return f, nil
}

// ScoreRow holds the scores of one entity, aligned with ScoresTable.Columns.
type ScoreRow struct {
	Key    any
	Values []float64
}

// ScoresTable is the output of a scorer: one row per entity of the features table.
type ScoresTable struct {
	PrimaryKey string
	Columns    []string
	Rows       []ScoreRow
}

// Column returns the values of the named column in row order.
func (st *ScoresTable) Column(name string) ([]float64, bool) {
	j := slices.Index(st.Columns, name)
	if j < 0 {
		return nil, false
	}
	values := make([]float64, len(st.Rows))
	for i, row := range st.Rows {
		values[i] = row.Values[j]
	}
	return values, true
}

// Get returns the score of one entity. Keys are compared by their text form,
// so 1, "1" and json.Number("1") address the same entity.
func (st *ScoresTable) Get(key any, column string) (float64, bool) {
	j := slices.Index(st.Columns, column)
	if j < 0 {
		return 0, false
	}
	k := KeyString(key)
	for _, row := range st.Rows {
		if KeyString(row.Key) == k {
			return row.Values[j], true
		}
	}
	return 0, false
}

// Merge returns a new table with the columns of other appended to the columns of st.
// Rows are joined by key and keep the order of st. Every key of st must be present
// in other and the column names must not overlap.
func (st *ScoresTable) Merge(other *ScoresTable) (*ScoresTable, error) {
	for _, c := range other.Columns {
		if slices.Contains(st.Columns, c) {
			return nil, fmt.Errorf("merge scores: duplicate column %q", c)
		}
	}

	index := make(map[string]int, len(other.Rows))
	for i, row := range other.Rows {
		index[KeyString(row.Key)] = i
	}

	merged := ScoresTable{
		PrimaryKey: st.PrimaryKey,
		Columns:    slices.Concat(st.Columns, other.Columns),
		Rows:       make([]ScoreRow, len(st.Rows)),
	}
	for i, row := range st.Rows {
		j, found := index[KeyString(row.Key)]
		if !found {
			return nil, fmt.Errorf("merge scores: key %v missing from %v", row.Key, other.Columns)
		}
		merged.Rows[i] = ScoreRow{
			Key:    row.Key,
			Values: slices.Concat(row.Values, other.Rows[j].Values),
		}
	}
	return &merged, nil
}

// MarshalJSON encodes the table as an array of objects whose fields keep column order:
// the primary key first, then the score columns.
func (st *ScoresTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range st.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		if err := writeField(&buf, st.PrimaryKey, row.Key); err != nil {
			return nil, err
		}
		for j, c := range st.Columns {
			buf.WriteByte(',')
			if err := writeField(&buf, c, row.Values[j]); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, name string, value any) error {
	k, err := json.Marshal(name)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// KeyString returns the text form of a primary key value.
func KeyString(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case json.Number:
		return k.String()
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	default:
		return fmt.Sprint(key)
	}
}
