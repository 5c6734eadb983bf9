package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"linscore/internal/configuration"
)

const defaultConfigPath = "/etc/linscore/config.yaml"

// prepareLogger настраивает глобальный логгер slog с JSON-форматом вывода в out.
// Уровень берётся из конфигурации; если задан файл, логи дублируются в него
// с ротацией через lumberjack. Возвращает файл логов для закрытия (или nil).
func prepareLogger(config configuration.LoggerConfig, out io.Writer) io.Closer {
	var logLevel slog.Level

	switch strings.ToLower(config.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var file *lumberjack.Logger
	if config.File != "" {
		file = &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   true,
		}
		out = io.MultiWriter(out, file)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	if file == nil {
		return nil
	}
	return file
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "linscore",
		Short:         "Linear scoring of transport services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "configuration file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(scoreCmd(&configPath))
	root.AddCommand(weightsCmd(&configPath))
	return root
}

// При ошибках загрузки конфигурации, весов или инициализации компонентов
// приложение завершается с кодом 1.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("linscore failed", "error", err)
		cancel()
		os.Exit(1)
	}
}
