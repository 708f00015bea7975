package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/devit-automation-service/internal/connectors"
	"github.com/xela07ax/devit-automation-service/internal/infra"
	"golang.org/x/time/rate"
)

// ToolRunner — транспортный слой исполнения инструмента.
type ToolRunner interface {
	Call(ctx context.Context, tool string, payload []byte) ([]byte, error)
}

// ReliabilityWrapper оборачивает Runner в Rate Limiter + Circuit Breaker + Retry.
// Ретраи живут ТОЛЬКО здесь, на транспорте: Enricher по контракту не ретраит.
type ReliabilityWrapper struct {
	next    ToolRunner
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *Metrics
}

func NewReliabilityWrapper(next ToolRunner, cfg infra.EngineConfig, metrics *Metrics) *ReliabilityWrapper {
	w := &ReliabilityWrapper{next: next, metrics: metrics}

	// Настройка предохранителя
	w.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tool-runner",
		MaxRequests: uint32(cfg.CBMaxRequests),
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics == nil {
				return
			}
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerState.Set(1)
			} else {
				metrics.CircuitBreakerState.Set(0)
			}
		},
	})

	// Настройка лимитера (например, 100 запросов в секунду)
	w.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)

	return w
}

func (w *ReliabilityWrapper) Call(ctx context.Context, tool string, payload []byte) ([]byte, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData []byte

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если Runner вернул ThrottleError (считал Retry-After заголовок)
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Call(tCtx, tool, payload)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.([]byte), nil
}
