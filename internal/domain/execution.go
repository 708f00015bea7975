package domain

// ExecuteRequest — входящий запрос на исполнение инструмента.
// Parameters — сырые параметры от вызывающей стороны (AI-brain/оркестратор),
// обогащение добавит к ним connection-данные перед диспатчем.
type ExecuteRequest struct {
	Tool       string                 `json:"tool"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ExecuteResponse — ответ шлюза исполнения.
// EnrichError заполняется только когда обогащение было обязательным и не удалось;
// how_to_fix внутри него предназначен оператору, а не машине.
type ExecuteResponse struct {
	Status      string                 `json:"status"` // "success" | "failed" | "enrichment_error"
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	EnrichError interface{}            `json:"enrichment_error,omitempty"`
	TraceID     string                 `json:"trace_id"`
}
