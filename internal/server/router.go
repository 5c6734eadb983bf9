package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"linscore/internal/event"
	"linscore/internal/feature"
	"linscore/internal/metrics"
	"linscore/internal/score"
	"linscore/internal/score/scorer"
)

const (
	tokenHeader = "X-Api-Token"
	runIDHeader = "X-Run-Id"

	maxBodyBytes = 1 << 20
)

// RunLoader returns the scores of a past run.
type RunLoader interface {
	LoadScores(ctx context.Context, runID string) (*score.ScoresTable, error)
}

// ApiV1Router manages routes for API version 1.
// It receives transport-service events, scores buffered entities and feature tables
// and exposes the collected metrics.
type ApiV1Router struct {
	primaryKey string
	token      string

	events  *event.Repository
	deriver *feature.Deriver
	runner  *scorer.Runner
	runs    RunLoader
	metrics *metrics.Metrics
}

// Mux returns a configured *http.ServeMux with registered handlers:
// - POST /api/v1/events: buffers one event
// - GET /api/v1/scores: scores every buffered entity
// - GET /api/v1/scores/{id}: scores the buffered events of an entity
// - POST /api/v1/scores: scores the posted features table
// - GET /api/v1/runs/{run}: returns a stored run (if a store is configured)
// - GET /metrics: Prometheus metrics
func (ar *ApiV1Router) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/events", ar.authorized(ar.eventHandler))
	mux.Handle("GET /api/v1/scores", ar.authorized(ar.bufferScoreHandler))
	mux.Handle("GET /api/v1/scores/{id}", ar.authorized(ar.entityScoreHandler))
	mux.Handle("POST /api/v1/scores", ar.authorized(ar.tableScoreHandler))

	if ar.runs != nil {
		mux.Handle("GET /api/v1/runs/{run}", ar.authorized(ar.runHandler))
	}

	if ar.metrics != nil {
		mux.Handle("GET /metrics", ar.metrics.Handler())
	}

	return mux
}

// authorized rejects requests without the configured token.
func (ar *ApiV1Router) authorized(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get(tokenHeader)), []byte(ar.token)) != 1 {
			slog.Warn("Unauthorized request", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

// eventHandler handles POST requests with one event.
// The entity key is taken from the primary key field of the event.
func (ar *ApiV1Router) eventHandler(w http.ResponseWriter, r *http.Request) {
	var e event.Event
	if err := decodeBody(w, r, &e); err != nil {
		slog.Warn("Unable to unmarshal event request body", "error", err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	key, ok := e.Key(ar.primaryKey)
	if !ok {
		slog.Warn("Event without key", "field", ar.primaryKey)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	ar.events.Append(key, e)
	ar.metrics.ObserveEvent(ar.events.Len())
	w.WriteHeader(http.StatusAccepted)
}

// bufferScoreHandler derives the features of every buffered entity and scores them in one run.
func (ar *ApiV1Router) bufferScoreHandler(w http.ResponseWriter, r *http.Request) {
	ar.score(w, r, ar.deriver.Derive(ar.primaryKey, ar.events.Snapshot()))
}

// entityScoreHandler derives the features of one entity from its buffered events and scores them.
func (ar *ApiV1Router) entityScoreHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, found := ar.events.Get(id)
	if !found {
		slog.Debug("Entity not found", "id", id)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ar.score(w, r, ar.deriver.DeriveOne(ar.primaryKey, id, events))
}

type scoreRequest struct {
	Rows []score.Row `json:"rows"`
}

// tableScoreHandler scores the features table posted as {"rows": [...]}.
func (ar *ApiV1Router) tableScoreHandler(w http.ResponseWriter, r *http.Request) {
	var request scoreRequest
	if err := decodeBody(w, r, &request); err != nil {
		slog.Warn("Unable to unmarshal score request body", "error", err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	ar.score(w, r, score.NewFeaturesTable(request.Rows))
}

func (ar *ApiV1Router) score(w http.ResponseWriter, r *http.Request, features *score.FeaturesTable) {
	runID, table, err := ar.runner.Run(r.Context(), features)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	w.Header().Set(runIDHeader, runID)
	writeJSON(w, table)
}

// runHandler returns the scores stored for a run.
func (ar *ApiV1Router) runHandler(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run")
	table, err := ar.runs.LoadScores(r.Context(), runID)
	if err != nil {
		slog.Debug("Run not found", "run", runID, "error", err)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set(runIDHeader, runID)
	writeJSON(w, table)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Unable to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// NewApiV1Router creates a new API v1 router.
// Parameters:
// - primaryKey: event field and features column holding the entity key
// - token: value expected in the X-Api-Token header
// - events: event buffer
// - deriver: turns buffered events into features
// - runner: scores features and records the results
// - runs: stored runs, may be nil
// - m: metrics, may be nil
func NewApiV1Router(
	primaryKey string,
	token string,
	events *event.Repository,
	deriver *feature.Deriver,
	runner *scorer.Runner,
	runs RunLoader,
	m *metrics.Metrics,
) *ApiV1Router {
	return &ApiV1Router{
		primaryKey: primaryKey,
		token:      token,
		events:     events,
		deriver:    deriver,
		runner:     runner,
		runs:       runs,
		metrics:    m,
	}
}
