package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/devit-automation-service/internal/asset"
	"github.com/xela07ax/devit-automation-service/internal/audit"
	"github.com/xela07ax/devit-automation-service/internal/connectors"
	"github.com/xela07ax/devit-automation-service/internal/engine"
	"github.com/xela07ax/devit-automation-service/internal/enrich"
	"github.com/xela07ax/devit-automation-service/internal/infra"
	"github.com/xela07ax/devit-automation-service/internal/infra/auth"
	"github.com/xela07ax/devit-automation-service/internal/registry"
	"github.com/xela07ax/devit-automation-service/internal/secrets"

	"go.uber.org/zap"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Аудит-пайплайн: sink по конфигу, очередь, один воркер
	sink := audit.NewSinkFromConfig(cfg, logger)
	auditor := audit.NewPipeline(sink, cfg.Audit.BufferSize, logger)
	auditor.Start()

	// 3. Runtime-переключатель обогащения (Redis)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	enrichSwitch := engine.NewEnrichSwitch(rdb, cfg.Engine.EnrichDisabledTools, logger)
	if err := enrichSwitch.Init(appCtx); err != nil {
		// Redis не критичен для старта: без него работаем по статическому флагу
		logger.Warn("enrich switch init failed, runtime toggling unavailable", zap.Error(err))
	}
	go enrichSwitch.StartListener(appCtx)

	// 4. Внешние коллабораторы
	assets := asset.NewHTTPFacade(cfg.Engine.AssetURL, logger)
	resolver := secrets.NewHTTPResolver(cfg.Engine.SecretsURL, logger)

	var toolRegistry registry.Registry
	if cfg.Engine.RegistryURL != "" {
		toolRegistry = registry.NewHTTPRegistry(cfg.Engine.RegistryURL, logger)
	} else {
		// Без каталога поднимаем локальный минимум для smoke-прогонов
		logger.Warn("no registry_url configured, using built-in static catalog")
		toolRegistry = registry.NewStaticRegistry(demoCatalog())
	}

	// 5. Enricher
	enricher := enrich.NewEnricher(assets, resolver, cfg.Engine.EnrichEnable, enrichSwitch, logger)

	// 6. Execution Layer (Исполнение + Надежность)
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	var runner engine.ToolRunner
	if cfg.Engine.RunnerURL != "" {
		runner = connectors.NewHTTPRunnerAdapter(cfg.Engine.RunnerURL)
	} else {
		logger.Warn("no runner_url configured, using mock runner")
		runner = &connectors.MockRunner{}
	}
	// Оборачиваем в Reliability (Retries, Circuit Breaker, Rate Limit)
	safeRunner := engine.NewReliabilityWrapper(runner, cfg.Engine, metrics)

	// 7. Core
	core := engine.NewAutomationCore(toolRegistry, enricher, safeRunner, auditor, metrics, logger)

	// 8. HTTP Server
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("cannot start without auth public key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(engine.TracingMiddleware) // 1. Присваиваем Trace-ID
		r.Use(auth.NewMiddleware(validator, logger))
		r.Post("/v1/execute", core.HandleExecute)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("automation-service started", zap.String("addr", srv.Addr), zap.String("audit_sink", cfg.Audit.Sink))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("automation-service stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Останавливаем фоновые слушатели и дренируем аудит ПОСЛЕ остановки HTTP:
	// продьюсеров больше нет, очередь дочитывается полностью
	cancel()
	auditor.Stop()

	logger.Info("automation-service exited properly")
}

// demoCatalog — минимальный каталог для запуска без внешнего Tool Registry.
func demoCatalog() []registry.ToolDefinition {
	return []registry.ToolDefinition{
		{
			Name: "windows_list_directory",
			Auth: &registry.AuthSpec{Protocol: "winrm", Needs: []string{"host"}},
		},
		{
			Name: "windows_service_restart",
			Auth: &registry.AuthSpec{Protocol: "winrm", Needs: []string{"host", "service"}},
		},
		{
			Name: "linux_disk_usage",
			Auth: &registry.AuthSpec{Protocol: "ssh", Needs: []string{"host"}},
		},
		{
			// Локальный инструмент: auth-блока нет, обогащение его не трогает
			Name: "ping_check",
		},
	}
}
