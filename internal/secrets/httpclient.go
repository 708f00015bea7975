package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPResolver — клиент к REST API брокера секретов.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPResolver(baseURL string, logger *zap.Logger) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(zap.String("mod", "secrets")),
	}
}

type resolveRequest struct {
	CredentialRef string `json:"credential_ref"`
	AccessedBy    string `json:"accessed_by"`
}

// Resolve запрашивает секрет по ссылке.
// POST {base}/api/v1/secrets/resolve
// 404 от брокера — не ошибка транспорта, а «секрет недоступен»: (nil, nil).
func (r *HTTPResolver) Resolve(ctx context.Context, credentialRef string, accessedBy string) (*Credential, error) {
	body, err := json.Marshal(resolveRequest{CredentialRef: credentialRef, AccessedBy: accessedBy})
	if err != nil {
		return nil, fmt.Errorf("secrets: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/v1/secrets/resolve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("secrets: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("secrets: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		r.logger.Warn("credential ref not resolvable",
			zap.String("ref", Mask(credentialRef)),
			zap.String("accessed_by", accessedBy),
		)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("secrets: unexpected status %d for ref %s", resp.StatusCode, Mask(credentialRef))
	}

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return nil, fmt.Errorf("secrets: decode response: %w", err)
	}

	// Пустой ответ трактуем как нерезолвленный секрет
	if cred.Username == "" && cred.Password == "" && cred.PrivateKey == "" {
		return nil, nil
	}

	return &cred, nil
}
