package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger настраивает глобальный slog.Logger процесса.
//
// Поведение управляется переменными окружения:
//   - LOG_LEVEL: DEBUG, INFO, WARN, ERROR (default: INFO)
//   - LOG_FORMAT: "text" для разработки, иначе JSON
//
// На уровне DEBUG в записи добавляется источник (file:line).
func SetupLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(raw string) slog.Level {
	switch strings.ToUpper(raw) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
