package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"linscore/internal/event"
	"linscore/internal/feature"
	"linscore/internal/metrics"
	"linscore/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scoring HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	config := a.config
	if err := config.ValidateServer(); err != nil {
		return err
	}

	schema := feature.Schema(config.Features.Fields)
	rules, err := feature.LoadFromFile(config.Features.Rules, schema.Env)
	if err != nil {
		return err
	}
	deriver := feature.NewDeriver(schema, rules)

	m := metrics.New()
	runner, err := a.runner(ctx, "", m)
	if err != nil {
		return err
	}

	events := event.NewRepository(config.Events.Length, config.Events.TTL)

	var runs server.RunLoader
	if a.store != nil {
		runs = a.store
	}

	router := server.NewApiV1Router(config.Scoring.PrimaryKey, config.Server.Token, events, deriver, runner, runs, m)
	srv := server.NewServer(config.Server.Address, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events.Serve()
		return nil
	})
	g.Go(func() error {
		slog.Info("Server listening " + config.Server.Address)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer events.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown", "error", err)
		}
		slog.Info("Server stopped")
		return nil
	})

	return g.Wait()
}
