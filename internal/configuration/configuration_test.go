package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
logger:
  level: debug
  file: /var/log/linscore/linscore.log
server:
  address: ":9090"
  token: secret
scoring:
  primary_key: service_id
  weights: /etc/linscore/weights.yaml
  missing_as_zero: true
  model:
    name: catboost
    url: http://model:8000
    timeout: 2s
events:
  length: 20
  ttl: 30m
features:
  rules: /etc/linscore/rules.yaml
  fields:
    start_delay_min: double
    play_pressed: bool
store:
  path: /var/lib/linscore/linscore.db
dataset:
  file: /var/lib/linscore/scores.json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", config.Logger.Level)
	assert.Equal(t, 100, config.Logger.MaxSize)
	assert.Equal(t, ":9090", config.Server.Address)
	assert.Equal(t, "secret", config.Server.Token)
	assert.Equal(t, "service_id", config.Scoring.PrimaryKey)
	assert.True(t, config.Scoring.MissingAsZero)
	assert.Equal(t, 1e-8, config.Scoring.Tolerance)
	assert.Equal(t, "latest", config.Scoring.WeightsVersion)
	assert.Equal(t, ModelConfig{Name: "catboost", URL: "http://model:8000", Timeout: 2 * time.Second}, config.Scoring.Model)
	assert.Equal(t, EventsConfig{Length: 20, TTL: 30 * time.Minute}, config.Events)
	assert.Equal(t, map[string]string{"start_delay_min": "double", "play_pressed": "bool"}, config.Features.Fields)
	assert.Equal(t, "/var/lib/linscore/linscore.db", config.Store.Path)
	assert.Equal(t, DatasetConfig{File: "/var/lib/linscore/scores.json", Size: 100, Amount: 20}, config.Dataset)
	assert.NoError(t, config.ValidateServer())
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "scoring:\n  weights: w.yaml\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", config.Logger.Level)
	assert.Equal(t, ":8080", config.Server.Address)
	assert.Equal(t, 100, config.Events.Length)
	assert.Equal(t, time.Hour, config.Events.TTL)
	assert.Error(t, config.ValidateServer(), "token is required to serve")
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("LINSCORE_SERVER_TOKEN", "from-env")
	t.Setenv("LINSCORE_SCORING_PRIMARY_KEY", "entity")

	config, err := LoadConfig(writeConfig(t, fullConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", config.Server.Token)
	assert.Equal(t, "entity", config.Scoring.PrimaryKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorContains(t, err, "error reading config file")
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"level", "logger:\n  level: trace\n", "logger.level"},
		{"tolerance", "scoring:\n  tolerance: -1\n", "scoring.tolerance"},
		{"model url", "scoring:\n  model:\n    name: m\n    url: not a url\n", "scoring.model.url"},
		{"model name", "scoring:\n  model:\n    url: http://model:8000\n", "scoring.model.name"},
		{"events length", "events:\n  length: 0\n", "events.length"},
		{"field type", "features:\n  fields:\n    x: list\n", "features.fields.x"},
		{"dataset size", "dataset:\n  file: scores.json\n  size: -1\n", "dataset.size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestServerConfig_Validate(t *testing.T) {
	assert.Error(t, (&ServerConfig{Token: "t"}).Validate())
	assert.Error(t, (&ServerConfig{Address: ":8080"}).Validate())
	assert.NoError(t, (&ServerConfig{Address: ":8080", Token: "t"}).Validate())
}
