package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"linscore/internal/score"
)

// ModelScorer sends features tables to an external classification model
// and returns its predictions as a single score column, score_<model>.
type ModelScorer struct {
	url        string       // base URL of the model service
	client     *http.Client // client with the request timeout
	model      string       // model name, also used for the column name
	primaryKey string
}

type predictRequest struct {
	Model      string      `json:"model"`
	PrimaryKey string      `json:"primary_key"`
	Rows       []score.Row `json:"rows"`
}

type predictResponse struct {
	Predictions map[string]float64 `json:"predictions"`
}

// Score posts the features table to {url}/predict.
//
// Request:  {"model": "...", "primary_key": "...", "rows": [...]}
// Response: {"predictions": {"<key>": 0.93, ...}}
//
// A non-200 status, an invalid body or an entity without prediction is an error.
func (ms *ModelScorer) Score(ctx context.Context, features *score.FeaturesTable) (*score.ScoresTable, error) {
	requestBody, err := json.Marshal(predictRequest{
		Model:      ms.model,
		PrimaryKey: ms.primaryKey,
		Rows:       jsonRows(features.Rows),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ms.url+"/predict", bytes.NewReader(requestBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ms.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model %s response error code=%d status=%s", ms.model, resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result predictResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("model %s: %w", ms.model, err)
	}

	table := score.ScoresTable{
		PrimaryKey: ms.primaryKey,
		Columns:    []string{score.ScoreColumn(ms.model)},
		Rows:       make([]score.ScoreRow, len(features.Rows)),
	}
	for i, row := range features.Rows {
		key := row[ms.primaryKey]
		p, found := result.Predictions[score.KeyString(key)]
		if !found {
			return nil, fmt.Errorf("model %s: no prediction for %v", ms.model, key)
		}
		table.Rows[i] = score.ScoreRow{Key: key, Values: []float64{p}}
	}

	return &table, nil
}

// jsonRows replaces NaN values, which JSON cannot carry, with null.
func jsonRows(rows []score.Row) []score.Row {
	out := make([]score.Row, len(rows))
	for i, row := range rows {
		clean := make(score.Row, len(row))
		for k, v := range row {
			switch f := v.(type) {
			case float64:
				if math.IsNaN(f) {
					v = nil
				}
			case float32:
				if math.IsNaN(float64(f)) {
					v = nil
				}
			}
			clean[k] = v
		}
		out[i] = clean
	}
	return out
}

// NewModelScorer creates a scorer for the model service at url
// (e.g. "http://catboost:8080"), bounded by timeout per request.
func NewModelScorer(url string, timeout time.Duration, model, primaryKey string) *ModelScorer {
	client := http.Client{
		Timeout: timeout,
	}

	return &ModelScorer{
		url:        url,
		client:     &client,
		model:      model,
		primaryKey: primaryKey,
	}
}
