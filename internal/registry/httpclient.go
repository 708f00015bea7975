package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// HTTPRegistry — клиент к сервису-каталогу инструментов.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPRegistry(baseURL string, logger *zap.Logger) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger.With(zap.String("mod", "tool-registry")),
	}
}

// Lookup запрашивает определение инструмента по имени.
// GET {base}/api/v1/tools/{name}
func (r *HTTPRegistry) Lookup(ctx context.Context, name string) (*ToolDefinition, error) {
	u := fmt.Sprintf("%s/api/v1/tools/%s", r.baseURL, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry: unexpected status %d", resp.StatusCode)
	}

	var def ToolDefinition
	if err := json.NewDecoder(resp.Body).Decode(&def); err != nil {
		return nil, fmt.Errorf("registry: decode response: %w", err)
	}
	return &def, nil
}
