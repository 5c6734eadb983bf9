package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"linscore/internal/configuration"
	"linscore/internal/dataset"
	"linscore/internal/metrics"
	"linscore/internal/score"
	"linscore/internal/score/scorer"
	"linscore/internal/store"
	"linscore/internal/tableio"
)

const latestVersion = "latest"

// app holds the components shared by the commands. Optional components are nil when
// they are not configured.
type app struct {
	config  *configuration.AppConfig
	logFile io.Closer
	store   *store.Store
	dataset dataset.Repository
}

// loadApp loads the configuration and opens the configured components.
// Logs are written to logOut.
func loadApp(configPath string, logOut io.Writer) (*app, error) {
	config, err := configuration.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	a := app{config: config}
	a.logFile = prepareLogger(config.Logger, logOut)

	if config.Store.Path != "" {
		a.store, err = store.Open(config.Store.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	if config.Dataset.File != "" {
		a.dataset = dataset.NewJSONRepository(config.Dataset.File, config.Dataset.Size, config.Dataset.Amount)
	}

	return &a, nil
}

func (a *app) Close() {
	if a.dataset != nil {
		if err := a.dataset.Close(); err != nil {
			slog.Error("Dataset close", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Error("Store close", "error", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// requireStore returns the store or an error when it is not configured.
func (a *app) requireStore() (*store.Store, error) {
	if a.store == nil {
		return nil, errors.New("store.path: must be specified")
	}
	return a.store, nil
}

// weights loads the weights table from file, the configured file or the store, in that order.
func (a *app) weights(ctx context.Context, file string) (score.WeightsTable, error) {
	if file == "" {
		file = a.config.Scoring.Weights
	}
	if file != "" {
		return tableio.ReadWeights(file)
	}

	s, err := a.requireStore()
	if err != nil {
		return nil, fmt.Errorf("weights source: %w", err)
	}

	version := a.config.Scoring.WeightsVersion
	if version == "" || version == latestVersion {
		version, err = s.LatestVersion(ctx)
		if err != nil {
			return nil, err
		}
	}
	slog.Info("Using stored weights", "version", version)
	return s.LoadWeights(ctx, version)
}

// runner builds the configured scorers and wraps them with the configured sinks.
func (a *app) runner(ctx context.Context, weightsFile string, m *metrics.Metrics) (*scorer.Runner, error) {
	weights, err := a.weights(ctx, weightsFile)
	if err != nil {
		return nil, err
	}

	scoring := a.config.Scoring
	opts := []score.Option{score.WithTolerance(scoring.Tolerance)}
	if scoring.MissingAsZero {
		opts = append(opts, score.WithMissingFeaturesAsZero())
	}

	linear, err := scorer.NewLinearScorer(weights, scoring.PrimaryKey, opts...)
	if err != nil {
		return nil, err
	}

	var s score.Scorer = linear
	if scoring.Model.URL != "" {
		model := scorer.NewModelScorer(scoring.Model.URL, scoring.Model.Timeout, scoring.Model.Name, scoring.PrimaryKey)
		s = scorer.NewCompositeScorer(linear, model)
	}

	var sinks []scorer.Sink
	if a.dataset != nil {
		sinks = append(sinks, a.dataset)
	}
	if a.store != nil {
		sinks = append(sinks, a.store)
	}

	slog.Info("Scorer ready", "features", len(weights), "tags", weights.Tags(), "model", scoring.Model.Name)
	return scorer.NewRunner(s, m, sinks...), nil
}
