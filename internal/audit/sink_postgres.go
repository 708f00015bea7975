package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/devit-automation-service/internal/infra"
	"go.uber.org/zap"
)

// PostgresSink пишет записи по одной в таблицу audit_ai_queries.
// Пул создается лениво на первой записи: сервис стартует даже при лежащей БД.
// Ретраев нет — в отличие от Loki, ошибки Postgres здесь обычно не транзиентны
// (схема, DSN), и повторы только жгли бы время воркера.
type PostgresSink struct {
	cfg    infra.DatabaseConfig
	logger *zap.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func NewPostgresSink(cfg infra.DatabaseConfig, logger *zap.Logger) *PostgresSink {
	return &PostgresSink{
		cfg:    cfg,
		logger: logger.With(zap.String("mod", "postgres-sink")),
	}
}

// getPool возвращает пул, создавая его при первом обращении.
// Неудачная инициализация не кэшируется: следующая запись попробует снова.
func (s *PostgresSink) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		return s.pool, nil
	}

	pc, err := pgxpool.ParseConfig(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pc.MinConns = s.cfg.MinConns
	pc.MaxConns = s.cfg.MaxConns
	pc.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s.logger.Info("postgres audit pool created",
		zap.Int32("min_conns", pc.MinConns),
		zap.Int32("max_conns", pc.MaxConns),
	)
	s.pool = pool
	return pool, nil
}

func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	pool, err := s.getPool(ctx)
	if err != nil {
		return fmt.Errorf("postgres sink: %w", err)
	}

	tools, err := json.Marshal(rec.Tools)
	if err != nil {
		return fmt.Errorf("postgres sink: marshal tools: %w", err)
	}

	query := `
		INSERT INTO audit_ai_queries (trace_id, user_id, input, output, tools, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	// Соединение между записями не удерживается: один insert — один Acquire внутри пула
	if _, err := pool.Exec(ctx, query,
		rec.TraceID, rec.UserID, rec.Input, rec.Output, tools, rec.DurationMs, rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres sink: insert failed: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}
