package telemetry

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel переводит строковый уровень логирования в slog.Level.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
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

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
func SetupLogger(level, format string) *slog.Logger {
	var handler slog.Handler

	lvl := LogLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger — ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithBatchID возвращает логгер с добавленным batch_id.
func WithBatchID(logger *slog.Logger, batchID int64) *slog.Logger {
	return logger.With("batch_id", batchID)
}

// WithCommandID возвращает логгер с добавленным command_id.
func WithCommandID(logger *slog.Logger, commandID int64) *slog.Logger {
	return logger.With("command_id", commandID)
}

// WithUser возвращает логгер с доменом и ID пользователя.
func WithUser(logger *slog.Logger, domain string, localUserID int64) *slog.Logger {
	return logger.With("domain", domain, "user_id", strconv.FormatInt(localUserID, 10))
}
