package engine

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/devit-automation-service/internal/infra"
	"go.uber.org/zap"
)

// globalWildcard — спецзначение в disabled_set: обогащение выключено для всех.
const globalWildcard = "*"

// EnrichSwitch — runtime-переключатель обогащения.
// Статический флаг EXEC_ENRICH_ENABLE требует рестарта; этот менеджер дает
// ИБ-команде выключить обогащение конкретного инструмента (или всё сразу)
// одним PUBLISH, без деплоя. Hot Path читает только из RAM.
type EnrichSwitch struct {
	mu       sync.RWMutex
	disabled map[string]struct{} // tool name -> выключено; "*" -> глобально
	seed     []string            // холодный источник из конфига: чем греть пустой Redis
	rdb      *redis.Client
	logger   *zap.Logger
}

func NewEnrichSwitch(rdb *redis.Client, seed []string, logger *zap.Logger) *EnrichSwitch {
	return &EnrichSwitch{
		disabled: make(map[string]struct{}),
		seed:     seed,
		rdb:      rdb,
		logger:   logger.With(zap.String("mod", "enrich-switch")),
	}
}

// Init загружает текущее состояние отключений при старте сервиса.
// Пустой Redis прогревается списком enrich_disabled_tools из конфига —
// это единственный холодный источник для SAdd-ветки прогрева.
func (s *EnrichSwitch) Init(ctx context.Context) error {
	fromRedis, err := s.rdb.SMembers(ctx, infra.RedisKeyEnrichDisabled).Result()
	if err != nil {
		return err
	}

	return WarmupState(ctx, s.rdb, s.logger, coldStart(fromRedis, s.seed),
		infra.RedisKeyEnrichDisabled, infra.GetWarmupLockKey("enrich_disabled"),
		s.replaceAll)
}

// coldStart выбирает источник состояния: Redis, если там что-то есть, иначе конфиг.
func coldStart(fromRedis, seed []string) []string {
	if len(fromRedis) > 0 {
		return fromRedis
	}
	return seed
}

// replaceAll целиком заменяет L1-снимок (ресинхронизация при старте/переподключении).
func (s *EnrichSwitch) replaceAll(items []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = make(map[string]struct{}, len(items))
	for _, t := range items {
		s.disabled[t] = struct{}{}
	}
}

// apply обрабатывает один сигнал переключения.
func (s *EnrichSwitch) apply(tool string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		delete(s.disabled, tool)
	} else {
		s.disabled[tool] = struct{}{}
	}
	s.logger.Info("enrichment switch flipped",
		zap.String("tool", tool), zap.Bool("enabled", enabled))
}

// StartListener подписывается на live-сигналы переключения.
// Формат: "<tool>:off" выключает, "<tool>:on" включает, "*" — глобально.
func (s *EnrichSwitch) StartListener(ctx context.Context) {
	ListenStateResilient(ctx, s.rdb, s.logger, infra.RedisChanEnrichSignal,
		func() error { return s.Init(ctx) }, // Переподключение — пересинхронизация
		s.apply,
	)
}

// Enabled — максимально быстрая проверка в Hot Path (реализует enrich.RuntimeSwitch)
func (s *EnrichSwitch) Enabled(tool string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, off := s.disabled[globalWildcard]; off {
		return false
	}
	_, off := s.disabled[tool]
	return !off
}
