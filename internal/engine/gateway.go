package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xela07ax/devit-automation-service/internal/audit"
	"github.com/xela07ax/devit-automation-service/internal/domain"
	"github.com/xela07ax/devit-automation-service/internal/enrich"
	"github.com/xela07ax/devit-automation-service/internal/infra/auth"
	"github.com/xela07ax/devit-automation-service/internal/registry"
	"go.uber.org/zap"
)

// Ошибки доступа: их текст безопасен для клиента и маппится в 403.
// Всё остальное до диспатча — инфраструктурный сбой, наружу не уходит.
var (
	errForbidden   = errors.New("forbidden")
	errUnknownTool = errors.New("unknown tool")
)

// AutomationCore — ядро automation-service: каталог → обогащение → диспатч →
// аудит. Аудит строго после основного пути и всегда неблокирующий.
type AutomationCore struct {
	registry registry.Registry
	enricher *enrich.Enricher
	runner   ToolRunner // уже обернут в ReliabilityWrapper
	auditor  *audit.Pipeline
	metrics  *Metrics
	logger   *zap.Logger
}

func NewAutomationCore(
	reg registry.Registry,
	enricher *enrich.Enricher,
	runner ToolRunner,
	auditor *audit.Pipeline,
	metrics *Metrics,
	logger *zap.Logger,
) *AutomationCore {
	return &AutomationCore{
		registry: reg,
		enricher: enricher,
		runner:   runner,
		auditor:  auditor,
		metrics:  metrics,
		logger:   logger.Named("automation-core"),
	}
}

// ProcessExecution обрабатывает один запрос на исполнение инструмента.
// Ошибки обогащения возвращаются как данные в ответе (с how_to_fix),
// а не как Go-ошибка: решение «падать или уточнять» остается за вызывающим.
func (c *AutomationCore) ProcessExecution(ctx context.Context, req domain.ExecuteRequest) (domain.ExecuteResponse, error) {
	start := time.Now()
	traceID := extractTraceID(ctx)
	userID := auth.UserIDFromContext(ctx)

	c.metrics.TotalRequests.WithLabelValues(req.Tool).Inc()

	resp := domain.ExecuteResponse{TraceID: traceID}

	defer func() {
		c.metrics.RequestDuration.WithLabelValues(req.Tool, resp.Status).Observe(time.Since(start).Seconds())
	}()

	// ПРОВЕРКА ПРАВ ИЗ ТОКЕНА (Scopes)
	scopes := auth.ScopesFromContext(ctx)
	if scopes == nil {
		return resp, fmt.Errorf("security: unauthorized access attempt: %w", errForbidden)
	}
	if !scopes[req.Tool] && !scopes["automation.execute"] {
		return resp, fmt.Errorf("security: token does not grant permission for %s: %w", req.Tool, errForbidden)
	}

	// 1. Каталог: что это за инструмент и какой auth он декларирует
	tool, err := c.registry.Lookup(ctx, req.Tool)
	if err != nil {
		return resp, fmt.Errorf("tool registry lookup failed: %w", err)
	}
	if tool == nil {
		return resp, fmt.Errorf("%w: %q", errUnknownTool, req.Tool)
	}

	// 2. Обогащение: host -> connection profile -> credentials
	enrichStart := time.Now()
	res := c.enricher.Enrich(ctx, tool, req.Parameters, traceID)
	c.metrics.EnrichmentDuration.Observe(time.Since(enrichStart).Seconds())
	c.observeEnrichment(res)

	// Восстановимая ошибка обогащения: how_to_fix наружу, инструмент не запускаем
	if res.Failed() {
		resp.Status = "enrichment_error"
		resp.EnrichError = res.Err

		c.enqueueAudit(req, userID, traceID, audit.ToolCallInfo{
			Name:       req.Tool,
			Status:     "ENRICH_FAILED",
			Enriched:   false,
			DurationMs: time.Since(start).Milliseconds(),
			Error:      string(res.Err.Kind),
		}, &resp, start)
		return resp, nil
	}

	// 3. Диспатч на транспорт. Skipped ведет себя так, будто обогащения не существует
	payload, err := json.Marshal(res.Params)
	if err != nil {
		return resp, fmt.Errorf("marshal parameters: %w", err)
	}

	out, execErr := c.runner.Call(ctx, req.Tool, payload)

	info := audit.ToolCallInfo{
		Name:       req.Tool,
		Enriched:   res.Enriched(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if execErr != nil {
		resp.Status = "failed"
		resp.Error = execErr.Error()
		info.Status = "FAILED"
		info.Error = execErr.Error()
	} else {
		resp.Status = "success"
		info.Status = "SUCCESS"
		// Десериализуем ответ Runner-а для отдачи наружу
		if err := json.Unmarshal(out, &resp.Result); err != nil {
			resp.Result = map[string]interface{}{"raw": string(out)}
		}
	}

	// 4. Асинхронная запись аудита
	c.enqueueAudit(req, userID, traceID, info, &resp, start)

	return resp, execErr
}

// enqueueAudit собирает запись и кладет ее в пайплайн не блокируясь.
// Input — ИСХОДНЫЕ параметры вызова: инжектированные секреты в аудит не попадают.
func (c *AutomationCore) enqueueAudit(req domain.ExecuteRequest, userID, traceID string, info audit.ToolCallInfo, resp *domain.ExecuteResponse, start time.Time) {
	input, _ := json.Marshal(map[string]interface{}{"tool": req.Tool, "parameters": req.Parameters})
	output, _ := json.Marshal(resp)

	accepted := c.auditor.Enqueue(audit.Record{
		TraceID:    traceID,
		UserID:     userID,
		Input:      string(input),
		Output:     string(output),
		Tools:      []audit.ToolCallInfo{info},
		DurationMs: time.Since(start).Milliseconds(),
		CreatedAt:  time.Now(),
	})
	if !accepted {
		c.metrics.AuditDropped.Inc()
	}
	c.metrics.AuditBufferFill.Set(float64(c.auditor.QueueLen()))
}

func (c *AutomationCore) observeEnrichment(res enrich.Result) {
	switch {
	case res.Enriched():
		c.metrics.EnrichmentOutcomes.WithLabelValues("enriched", "").Inc()
	case res.Skipped():
		c.metrics.EnrichmentOutcomes.WithLabelValues("skipped", string(res.SkipReason)).Inc()
	case res.Failed():
		c.metrics.EnrichmentOutcomes.WithLabelValues("failed", string(res.Err.Kind)).Inc()
	}
}

// HandleExecute — HTTP-обработчик POST /v1/execute.
func (c *AutomationCore) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req domain.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Tool == "" {
		http.Error(w, `{"error": "tool name is required"}`, http.StatusBadRequest)
		return
	}

	resp, err := c.ProcessExecution(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case err != nil && resp.Status == "":
		if errors.Is(err, errForbidden) || errors.Is(err, errUnknownTool) {
			c.logger.Warn("execution rejected", zap.String("tool", req.Tool), zap.Error(err))
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			break
		}
		// Инфраструктурный сбой (недоступный каталог и т.п.): детали только в логах
		c.logger.Error("execution failed before dispatch", zap.String("tool", req.Tool), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "service dependency unavailable"})
	case resp.Status == "enrichment_error":
		// Восстановимо: оператор получает how_to_fix
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(resp)
	case resp.Status == "failed":
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(resp)
	default:
		json.NewEncoder(w).Encode(resp)
	}
}
