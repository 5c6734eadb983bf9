// Package tableio reads weights and features tables from files and writes scores tables.
package tableio

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"linscore/internal/score"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

// ReadWeights loads a weights table from a .yaml/.yml or .csv file.
// The table is validated before it is returned.
func ReadWeights(path string) (score.WeightsTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var weights score.WeightsTable
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		weights, err = DecodeWeightsYAML(file)
	case ".csv":
		weights, err = DecodeWeightsCSV(file)
	default:
		return nil, fmt.Errorf("weights %s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("weights %s: %w", path, err)
	}

	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("weights %s: %w", path, err)
	}
	return weights, nil
}

// DecodeWeightsYAML decodes a YAML list of {feature, weight, tag} entries.
func DecodeWeightsYAML(r io.Reader) (score.WeightsTable, error) {
	var weights score.WeightsTable
	if err := yaml.NewDecoder(r).Decode(&weights); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return weights, nil
}

// DecodeWeightsCSV decodes a CSV with a header naming the feature, weight and optional tag columns.
func DecodeWeightsCSV(r io.Reader) (score.WeightsTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	index := map[string]int{}
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	featureIdx, ok := index["feature"]
	if !ok {
		return nil, errors.New("feature column not found")
	}
	weightIdx, ok := index["weight"]
	if !ok {
		return nil, errors.New("weight column not found")
	}
	tagIdx, hasTag := index["tag"]

	var weights score.WeightsTable
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(record[weightIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("feature %s: bad weight %q", record[featureIdx], record[weightIdx])
		}
		w := score.Weight{Feature: strings.TrimSpace(record[featureIdx]), Weight: value}
		if hasTag {
			w.Tag = strings.TrimSpace(record[tagIdx])
		}
		weights = append(weights, w)
	}
	return weights, nil
}

// ReadFeatures loads a features table from a .csv or .json file.
func ReadFeatures(path, primaryKey string) (*score.FeaturesTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var features *score.FeaturesTable
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		features, err = DecodeFeaturesCSV(file, primaryKey)
	case ".json":
		features, err = DecodeFeaturesJSON(file)
	default:
		return nil, fmt.Errorf("features %s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("features %s: %w", path, err)
	}
	return features, nil
}

// DecodeFeaturesCSV decodes a CSV whose header names the columns. Empty cells are null,
// primary key cells stay strings and the other cells are parsed as numbers when possible.
func DecodeFeaturesCSV(r io.Reader, primaryKey string) (*score.FeaturesTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return score.NewFeaturesTable(nil), nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []score.Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		row := make(score.Row, len(header))
		for i, column := range header {
			row[column] = cell(record[i], column == primaryKey)
		}
		rows = append(rows, row)
	}

	table := score.NewFeaturesTable(rows)
	// header order wins over row key order
	table.Columns = header
	return table, nil
}

func cell(raw string, key bool) any {
	raw = strings.TrimSpace(raw)
	if key {
		return raw
	}
	if raw == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return raw
}

// DecodeFeaturesJSON decodes a JSON array of objects. Numbers are kept as json.Number.
func DecodeFeaturesJSON(r io.Reader) (*score.FeaturesTable, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var rows []score.Row
	if err := decoder.Decode(&rows); err != nil {
		return nil, err
	}
	return score.NewFeaturesTable(rows), nil
}

// WriteScores writes table to w in the given format (csv or json).
func WriteScores(w io.Writer, format string, table *score.ScoresTable) error {
	switch strings.ToLower(format) {
	case FormatCSV:
		return writeScoresCSV(w, table)
	case FormatJSON:
		return json.NewEncoder(w).Encode(table)
	default:
		return fmt.Errorf("scores %q: %w", format, ErrUnsupportedFormat)
	}
}

func writeScoresCSV(w io.Writer, table *score.ScoresTable) error {
	writer := csv.NewWriter(w)

	header := append([]string{table.PrimaryKey}, table.Columns...)
	if err := writer.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, row := range table.Rows {
		record[0] = score.KeyString(row.Key)
		for i, v := range row.Values {
			record[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
