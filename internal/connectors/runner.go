package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPRunnerAdapter — адаптер к Tool Runner, исполняющему инструменты по
// WinRM/SSH. Получает уже обогащенный payload; сам Runner секретов не хранит.
type HTTPRunnerAdapter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRunnerAdapter(baseURL string) *HTTPRunnerAdapter {
	return &HTTPRunnerAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Call реализует интерфейс ToolRunner.
// POST {base}/api/v1/run/{tool} с JSON-параметрами.
func (a *HTTPRunnerAdapter) Call(ctx context.Context, tool string, payload []byte) ([]byte, error) {
	// Защитный таймаут на уровне вызова: даже если ReliabilityWrapper имеет
	// свой, адаптер должен иметь свой предел
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	u := fmt.Sprintf("%s/api/v1/run/%s", a.baseURL, url.PathEscape(tool))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("runner: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("runner: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		// Уважаем Retry-After, если Runner его прислал
		retryAfter := 5 * time.Second
		if h := resp.Header.Get("Retry-After"); h != "" {
			if secs, err := strconv.Atoi(h); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, &ThrottleError{
			RetryAfter: retryAfter,
			Cause:      fmt.Errorf("runner returned 429"),
		}

	default:
		// Пытаемся вытащить структурную ошибку Runner-а
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errBody) == nil && errBody.Error != "" {
			return nil, fmt.Errorf("runner returned error [%d]: %s", resp.StatusCode, errBody.Error)
		}
		return nil, fmt.Errorf("runner returned status %d", resp.StatusCode)
	}
}
