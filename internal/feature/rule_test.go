package feature

import (
	"testing"

	"github.com/google/cel-go/cel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transportEnv(t *testing.T) *cel.Env {
	t.Helper()
	env, err := testSchema.Env()
	require.NoError(t, err)
	return env
}

var testSchema = Schema{
	"service_id":      "string",
	"start_delay_min": "double",
	"end_delay_min":   "double",
	"stops":           "int",
	"play_pressed":    "bool",
}

func TestRule_Init_Success(t *testing.T) {
	rule := &Rule{Feature: "on_time_start", Expr: "start_delay_min <= 5.0"}

	err := rule.Init(transportEnv(t))
	assert.NoError(t, err)
	assert.NotNil(t, rule.program, "program should be compiled and assigned")
}

func TestRule_Init_ParseError(t *testing.T) {
	rule := &Rule{Feature: "on_time_start", Expr: "start_delay_min <= "}

	assert.Error(t, rule.Init(transportEnv(t)))
}

func TestRule_Init_CheckError(t *testing.T) {
	rule := &Rule{Feature: "on_time_start", Expr: "unknown_field == 1"}

	assert.Error(t, rule.Init(transportEnv(t)))
}

func TestRule_Init_UnsupportedResult(t *testing.T) {
	rule := &Rule{Feature: "service", Expr: "service_id"}

	err := rule.Init(transportEnv(t))
	assert.ErrorIs(t, err, errUnsupportedResult)
}

func TestRule_Init_EmptyFeature(t *testing.T) {
	rule := &Rule{Expr: "play_pressed"}

	assert.Error(t, rule.Init(transportEnv(t)))
}

func TestRule_Eval_Bool(t *testing.T) {
	rule := &Rule{Feature: "on_time_start", Expr: "start_delay_min <= 5.0"}
	require.NoError(t, rule.Init(transportEnv(t)))

	v, err := rule.Eval(map[string]any{"start_delay_min": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = rule.Eval(map[string]any{"start_delay_min": 12.5})
	assert.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestRule_Eval_Number(t *testing.T) {
	rule := &Rule{Feature: "stops_per_ten", Expr: "double(stops) / 10.0"}
	require.NoError(t, rule.Init(transportEnv(t)))

	v, err := rule.Eval(map[string]any{"stops": int64(4)})
	assert.NoError(t, err)
	assert.InDelta(t, 0.4, v, 1e-12)
}

func TestRule_Eval_ComplexCondition(t *testing.T) {
	rule := &Rule{
		Feature: "on_time_service",
		Expr:    "start_delay_min <= 5.0 && (end_delay_min <= 5.0 || play_pressed)",
	}
	require.NoError(t, rule.Init(transportEnv(t)))

	v, err := rule.Eval(map[string]any{"start_delay_min": 1.0, "end_delay_min": 9.0, "play_pressed": true})
	assert.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestRule_Eval_MissingVariable(t *testing.T) {
	rule := &Rule{Feature: "play", Expr: "play_pressed"}
	require.NoError(t, rule.Init(transportEnv(t)))

	_, err := rule.Eval(map[string]any{"start_delay_min": 1.0})
	assert.Error(t, err)

	_, err = rule.Eval(nil)
	assert.Error(t, err)
}
