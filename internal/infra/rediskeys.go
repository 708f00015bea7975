package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "devit"
)

// Ключи для Sets (состояние)
const (
	// RedisKeyEnrichDisabled — множество инструментов, для которых обогащение
	// выключено оператором. Спецключ "*" означает глобальное отключение.
	RedisKeyEnrichDisabled = RedisNamespace + ":automation:enrich:disabled_set"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanEnrichSignal — канал для live-переключения обогащения.
	// Формат сообщения: "<tool>:off" / "<tool>:on", "*" вместо tool — глобально.
	RedisChanEnrichSignal = RedisNamespace + ":automation:enrich-signal"
)

// GetWarmupLockKey Генератор ключей для блокировок прогрева
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
