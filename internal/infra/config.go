package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации automation-service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL (используется только audit sink).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (runtime-переключатель обогащения).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит путь к публичному RSA ключу для проверки сервисных токенов.
// Приватный ключ живет только в Console API — automation-service токены не выпускает.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// EngineConfig содержит настройки исполнительного слоя и обогащения.
type EngineConfig struct {
	// Глобальный флаг обогащения. false выключает Enricher полностью,
	// независимо от runtime-сигналов из Redis.
	EnrichEnable bool `mapstructure:"enrich_enable"`

	// Инструменты, для которых обогащение выключено с первого старта.
	// Холодный источник прогрева Redis-состояния runtime-переключателя.
	EnrichDisabledTools []string `mapstructure:"enrich_disabled_tools"`

	// Адреса внешних коллабораторов
	AssetURL    string `mapstructure:"asset_url"`    // Asset Facade (инвентарь)
	SecretsURL  string `mapstructure:"secrets_url"`  // Secrets Manager (брокер секретов)
	RegistryURL string `mapstructure:"registry_url"` // Tool Registry (каталог инструментов)
	RunnerURL   string `mapstructure:"runner_url"`   // Tool Runner (WinRM/SSH транспорт)

	// Настройки Circuit Breaker и Rate Limiter для вызовов Runner
	CBMaxRequests uint          `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
}

// AuditConfig настраивает аудит-пайплайн: емкость очереди и выбор sink.
type AuditConfig struct {
	Sink       string `mapstructure:"sink"`        // stdout | loki | postgres
	BufferSize int    `mapstructure:"buffer_size"` // емкость очереди

	LokiURL        string        `mapstructure:"loki_url"`
	LokiTimeout    time.Duration `mapstructure:"loki_timeout"`     // таймаут одной попытки
	LokiMaxRetries int           `mapstructure:"loki_max_retries"` // всего попыток
	LokiRetryDelay time.Duration `mapstructure:"loki_retry_delay"` // база для экспоненты
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Исторические имена переменных платформы. Пришли из первой версии
	// automation-service и зашиты в деплойменты, поэтому биндим явно.
	_ = v.BindEnv("audit.sink", "AUDIT_SINK")
	_ = v.BindEnv("audit.loki_url", "LOKI_URL")
	_ = v.BindEnv("database.url", "POSTGRES_DSN", "DB_URL")
	_ = v.BindEnv("engine.enrich_enable", "EXEC_ENRICH_ENABLE")

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключа из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("database.max_conns", 5)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("engine.enrich_enable", true)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.rate_limit", 100)
	v.SetDefault("engine.rate_burst", 20)
	v.SetDefault("audit.sink", "stdout")
	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("audit.loki_url", "http://localhost:3100/loki/api/v1/push")
	v.SetDefault("audit.loki_timeout", 10*time.Second)
	v.SetDefault("audit.loki_max_retries", 3)
	v.SetDefault("audit.loki_retry_delay", 500*time.Millisecond)
}

// loadKeyResource — универсальный хелпер архитектора
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
