package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
)

// Формат Loki push API: streams -> {labels, [timestamp_ns, line]}.
type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type lokiPush struct {
	Streams []lokiStream `json:"streams"`
}

// clientError — 4xx от Loki. Клиентские ошибки не транзиентны, ретраить нечего.
type clientError struct {
	status int
}

func (e *clientError) Error() string {
	return fmt.Sprintf("loki rejected push: status %d", e.status)
}

type LokiOptions struct {
	URL        string
	Timeout    time.Duration // на одну HTTP-попытку, не суммарный дедлайн
	MaxRetries int           // всего попыток
	RetryDelay time.Duration // база экспоненциального бэкоффа: delay * 2^n
}

// LokiSink отправляет записи в Loki push API.
// Retry-политика: 5xx и сетевые ошибки — экспоненциальный бэкофф до MaxRetries
// попыток; 4xx — мгновенный отказ. Худший случай: MaxRetries * Timeout + бэкофф.
type LokiSink struct {
	opts   LokiOptions
	client *http.Client
	logger *zap.Logger
}

func NewLokiSink(opts LokiOptions, logger *zap.Logger) *LokiSink {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	return &LokiSink{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With(zap.String("mod", "loki-sink")),
	}
}

func (s *LokiSink) Write(ctx context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("loki: marshal record: %w", err)
	}

	push := lokiPush{Streams: []lokiStream{{
		Stream: map[string]string{
			"job":      "audit",
			"type":     "ai_query",
			"user_id":  rec.UserID,
			"trace_id": rec.TraceID,
		},
		Values: [][2]string{{
			strconv.FormatInt(rec.CreatedAt.UnixNano(), 10),
			string(line),
		}},
	}}}

	body, err := json.Marshal(push)
	if err != nil {
		return fmt.Errorf("loki: marshal push payload: %w", err)
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(s.opts.MaxRetries)),
		retry.Delay(s.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			var ce *clientError
			return !errors.As(err, &ce) // 4xx не ретраим
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("loki push retrying",
				zap.Uint("attempt", n+1),
				zap.String("trace_id", rec.TraceID),
				zap.Error(err),
			)
		}),
	)

	pushErr := r.Do(func() error {
		return s.attempt(ctx, body)
	})
	if pushErr != nil {
		return fmt.Errorf("loki: push failed after retries: %w", pushErr)
	}
	return nil
}

// attempt — одна HTTP-попытка. Таймаут клиента действует на каждую отдельно.
func (s *LokiSink) attempt(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err // сетевая ошибка — транзиентна, ретраим
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) // дочитываем для keep-alive

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &clientError{status: resp.StatusCode}
	default:
		return fmt.Errorf("loki server error: status %d", resp.StatusCode)
	}
}

func (s *LokiSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
