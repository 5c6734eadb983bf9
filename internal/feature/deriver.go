package feature

import (
	"log/slog"
	"sort"

	"linscore/internal/event"
	"linscore/internal/score"
)

// Deriver turns the buffered events of entities into a features table.
type Deriver struct {
	schema Schema
	rules  []Rule
}

// NewDeriver returns a deriver applying compiled rules to events described by schema.
func NewDeriver(schema Schema, rules []Rule) *Deriver {
	return &Deriver{schema: schema, rules: rules}
}

// Features returns the derived feature names in rule order.
func (d *Deriver) Features() []string {
	features := make([]string, len(d.rules))
	for i, r := range d.rules {
		features[i] = r.Feature
	}
	return features
}

// Derive builds one row per entity, sorted by key. The value of a feature is the mean
// of the rule over the entity's events where it evaluated successfully; when no event
// does, the feature is left null.
func (d *Deriver) Derive(primaryKey string, events map[string][]event.Event) *score.FeaturesTable {
	keys := make([]string, 0, len(events))
	for key := range events {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	table := score.FeaturesTable{
		Columns: append([]string{primaryKey}, d.Features()...),
		Rows:    make([]score.Row, 0, len(keys)),
	}

	for _, key := range keys {
		vars := make([]map[string]any, len(events[key]))
		for i, e := range events[key] {
			vars[i] = d.schema.Activation(e)
		}

		row := score.Row{primaryKey: key}
		for i := range d.rules {
			rule := &d.rules[i]
			sum, n := 0.0, 0
			for _, v := range vars {
				value, err := rule.Eval(v)
				if err != nil {
					slog.Debug("rule eval", "feature", rule.Feature, "key", key, "error", err)
					continue
				}
				sum += value
				n++
			}
			if n > 0 {
				row[rule.Feature] = sum / float64(n)
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return &table
}

// DeriveOne builds the features table of a single entity.
func (d *Deriver) DeriveOne(primaryKey, key string, events []event.Event) *score.FeaturesTable {
	return d.Derive(primaryKey, map[string][]event.Event{key: events})
}
