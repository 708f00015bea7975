package audit

import (
	"context"
	"os"

	"github.com/xela07ax/devit-automation-service/internal/infra"
	"go.uber.org/zap"
)

// Sink — куда физически персистится запись аудита.
// Write возвращает ошибку после исчерпания собственной retry-политики sink-а
// (у Loki она есть, у Postgres и stdout — нет); воркер ошибку логирует и едет дальше.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// NewSinkFromConfig выбирает sink по конфигурации: loki | postgres | stdout.
// Postgres без DSN — деградация в stdout с предупреждением, сервис не падает.
func NewSinkFromConfig(cfg *infra.Config, logger *zap.Logger) Sink {
	switch cfg.Audit.Sink {
	case "loki":
		return NewLokiSink(LokiOptions{
			URL:        cfg.Audit.LokiURL,
			Timeout:    cfg.Audit.LokiTimeout,
			MaxRetries: cfg.Audit.LokiMaxRetries,
			RetryDelay: cfg.Audit.LokiRetryDelay,
		}, logger)
	case "postgres":
		if cfg.Database.URL == "" {
			logger.Warn("audit sink 'postgres' selected but no DSN configured, falling back to stdout")
			return NewStdoutSink(os.Stdout)
		}
		return NewPostgresSink(cfg.Database, logger)
	default:
		return NewStdoutSink(os.Stdout)
	}
}
