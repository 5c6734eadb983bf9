package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linscore/internal/event"
	"linscore/internal/feature"
	"linscore/internal/metrics"
	"linscore/internal/score"
	"linscore/internal/score/scorer"
	"linscore/internal/store"
)

const (
	testToken = "secret"

	testRules = `
- feature: on_time_start
  expr: start_delay_min <= 5
- feature: play_pressed
  expr: play_pressed
`
)

var testWeights = score.WeightsTable{
	{Feature: "on_time_start", Weight: 2, Tag: "punctuality"},
	{Feature: "play_pressed", Weight: 1, Tag: "usage"},
}

type testEnv struct {
	handler http.Handler
	events  *event.Repository
	metrics *metrics.Metrics
}

func setupRouter(t *testing.T) testEnv {
	t.Helper()

	schema := feature.Schema{"start_delay_min": "double", "play_pressed": "bool"}
	rules, err := feature.Parse([]byte(testRules), schema.Env)
	require.NoError(t, err)

	linear, err := scorer.NewLinearScorer(testWeights, "service_id")
	require.NoError(t, err)

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := metrics.New()
	events := event.NewRepository(10, time.Hour)
	router := NewApiV1Router(
		"service_id",
		testToken,
		events,
		feature.NewDeriver(schema, rules),
		scorer.NewRunner(linear, m, s),
		s,
		m,
	)

	return testEnv{handler: router.Mux(), events: events, metrics: m}
}

func request(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set(tokenHeader, testToken)
	return r
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeScores(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	return rows
}

func TestRouter_Unauthorized(t *testing.T) {
	env := setupRouter(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"service_id":"S1"}`))
	assert.Equal(t, http.StatusUnauthorized, serve(env.handler, r).Code)

	for _, token := range []string{"wrong", "secre", "secret ", "SECRET"} {
		r.Header.Set(tokenHeader, token)
		assert.Equal(t, http.StatusUnauthorized, serve(env.handler, r).Code, token)
	}
	assert.Equal(t, 0, env.events.Len())
}

func TestRouter_Event(t *testing.T) {
	env := setupRouter(t)

	w := serve(env.handler, request(http.MethodPost, "/api/v1/events", `{"service_id":"S1","start_delay_min":2,"play_pressed":false}`))
	assert.Equal(t, http.StatusAccepted, w.Code)

	events, ok := env.events.Get("S1")
	require.True(t, ok)
	assert.Len(t, events, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.EventsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.BufferedEntities))
}

func TestRouter_Event_Invalid(t *testing.T) {
	env := setupRouter(t)

	for name, body := range map[string]string{
		"empty":       "",
		"not json":    "service_id=S1",
		"no key":      `{"start_delay_min":2}`,
		"null key":    `{"service_id":null}`,
		"not objects": `[1,2]`,
	} {
		w := serve(env.handler, request(http.MethodPost, "/api/v1/events", body))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, name)
	}
	assert.Equal(t, 0, env.events.Len())
}

func TestRouter_EntityScore(t *testing.T) {
	env := setupRouter(t)
	serve(env.handler, request(http.MethodPost, "/api/v1/events", `{"service_id":"S1","start_delay_min":2,"play_pressed":false}`))

	w := serve(env.handler, request(http.MethodGet, "/api/v1/scores/S1", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(runIDHeader))

	rows := decodeScores(t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "S1", rows[0]["service_id"])
	assert.InDelta(t, 2.0/3.0, rows[0]["score_global"], 1e-12)
	assert.InDelta(t, 1.0, rows[0]["score_punctuality"], 1e-12)
	assert.InDelta(t, 0.0, rows[0]["score_usage"], 1e-12)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ScoringRuns.WithLabelValues(metrics.ResultOK)))
}

func TestRouter_BufferScore(t *testing.T) {
	env := setupRouter(t)
	serve(env.handler, request(http.MethodPost, "/api/v1/events", `{"service_id":"S2","start_delay_min":9,"play_pressed":true}`))
	serve(env.handler, request(http.MethodPost, "/api/v1/events", `{"service_id":"S1","start_delay_min":2,"play_pressed":false}`))
	serve(env.handler, request(http.MethodPost, "/api/v1/events", `{"service_id":"S1","start_delay_min":3,"play_pressed":true}`))

	w := serve(env.handler, request(http.MethodGet, "/api/v1/scores", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(runIDHeader))

	rows := decodeScores(t, w)
	require.Len(t, rows, 2)
	assert.Equal(t, "S1", rows[0]["service_id"])
	assert.InDelta(t, 2.5/3.0, rows[0]["score_global"], 1e-12)
	assert.InDelta(t, 1.0, rows[0]["score_punctuality"], 1e-12)
	assert.InDelta(t, 0.5, rows[0]["score_usage"], 1e-12)
	assert.Equal(t, "S2", rows[1]["service_id"])
	assert.InDelta(t, 1.0/3.0, rows[1]["score_global"], 1e-12)
	assert.InDelta(t, 0.0, rows[1]["score_punctuality"], 1e-12)
	assert.InDelta(t, 1.0, rows[1]["score_usage"], 1e-12)
}

func TestRouter_BufferScore_Empty(t *testing.T) {
	env := setupRouter(t)

	w := serve(env.handler, request(http.MethodGet, "/api/v1/scores", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRouter_EntityScore_NotFound(t *testing.T) {
	env := setupRouter(t)

	w := serve(env.handler, request(http.MethodGet, "/api/v1/scores/S9", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_TableScore(t *testing.T) {
	env := setupRouter(t)

	w := serve(env.handler, request(http.MethodPost, "/api/v1/scores",
		`{"rows":[{"service_id":"a","on_time_start":1,"play_pressed":1},{"service_id":"b","on_time_start":0,"play_pressed":null}]}`))
	require.Equal(t, http.StatusOK, w.Code)

	rows := decodeScores(t, w)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"service_id": "a", "score_global": 1.0, "score_punctuality": 1.0, "score_usage": 1.0}, rows[0])
	assert.Equal(t, map[string]any{"service_id": "b", "score_global": 0.0, "score_punctuality": 0.0, "score_usage": 0.0}, rows[1])
}

func TestRouter_TableScore_Mismatch(t *testing.T) {
	env := setupRouter(t)

	w := serve(env.handler, request(http.MethodPost, "/api/v1/scores", `{"rows":[{"service_id":"a","on_time_start":1}]}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "play_pressed")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ScoringRuns.WithLabelValues(metrics.ResultMismatch)))
}

func TestRouter_TableScore_NonFiniteValue(t *testing.T) {
	env := setupRouter(t)

	w := serve(env.handler, request(http.MethodPost, "/api/v1/scores", `{"rows":[{"service_id":"a","on_time_start":"inf","play_pressed":1}]}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "finite")
}

func TestRouter_TableScore_BadBody(t *testing.T) {
	env := setupRouter(t)

	w := serve(env.handler, request(http.MethodPost, "/api/v1/scores", `{"rows":`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRouter_Run(t *testing.T) {
	env := setupRouter(t)

	scored := serve(env.handler, request(http.MethodPost, "/api/v1/scores", `{"rows":[{"service_id":"a","on_time_start":1,"play_pressed":0}]}`))
	require.Equal(t, http.StatusOK, scored.Code)
	runID := scored.Header().Get(runIDHeader)

	w := serve(env.handler, request(http.MethodGet, "/api/v1/runs/"+runID, ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, scored.Body.String(), w.Body.String())

	w = serve(env.handler, request(http.MethodGet, "/api/v1/runs/unknown", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	env := setupRouter(t)
	serve(env.handler, request(http.MethodPost, "/api/v1/events", `{"service_id":"S1"}`))

	w := serve(env.handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "linscore_events_received_total 1")
}
