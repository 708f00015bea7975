package audit

import "time"

// ToolCallInfo — метаданные одного вызова инструмента внутри записи аудита.
// Параметры сюда попадают в исходном виде вызывающей стороны — инжектированные
// секреты в аудит не пишутся никогда.
type ToolCallInfo struct {
	Name       string `json:"name"`
	Status     string `json:"status"` // "SUCCESS" | "FAILED" | "ENRICH_FAILED"
	Enriched   bool   `json:"enriched"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Record — одна запись "AI сделал этот tool call".
// Неизменяема после Enqueue; TraceID стабилен между ретраями одной логической
// операции и служит ключом корреляции во всех sink-ах.
type Record struct {
	TraceID    string         `json:"trace_id"`
	UserID     string         `json:"user_id"`
	Input      string         `json:"input"`  // исходный запрос (без секретов)
	Output     string         `json:"output"` // ответ, ушедший вызывающей стороне
	Tools      []ToolCallInfo `json:"tools"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}
