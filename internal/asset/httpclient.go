package asset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// HTTPFacade — клиент к REST API инвентаря.
// Ретраев здесь нет сознательно: неудачный резолв репортится один раз,
// решение о повторе принимает вызывающая сторона.
type HTTPFacade struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPFacade(baseURL string, logger *zap.Logger) *HTTPFacade {
	return &HTTPFacade{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(zap.String("mod", "asset-facade")),
	}
}

// GetConnectionProfile резолвит hostname в connection profile через инвентарь.
// GET {base}/api/v1/assets/connection-profile?host=<host>
func (f *HTTPFacade) GetConnectionProfile(ctx context.Context, host string) (*ProfileLookup, error) {
	u := fmt.Sprintf("%s/api/v1/assets/connection-profile?host=%s", f.baseURL, url.QueryEscape(host))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("asset facade: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asset facade: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset facade: unexpected status %d", resp.StatusCode)
	}

	var lookup ProfileLookup
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return nil, fmt.Errorf("asset facade: decode response: %w", err)
	}

	return &lookup, nil
}
