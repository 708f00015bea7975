package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMask(t *testing.T) {
	assert.Equal(t, "ref-***01", Mask("ref-prod-winrm-01"))
	assert.Equal(t, "***", Mask("short"))
	assert.Equal(t, "***", Mask(""))
	assert.NotContains(t, Mask("kv/prod/win-admin"), "win-admin")
}

func TestCheckPrivateKeyRejectsGarbage(t *testing.T) {
	assert.Error(t, CheckPrivateKey("not a pem at all"))
	assert.Error(t, CheckPrivateKey(""))
}

func TestHTTPResolverResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/secrets/resolve", r.URL.Path)

		var req struct {
			CredentialRef string `json:"credential_ref"`
			AccessedBy    string `json:"accessed_by"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "kv/prod/win-admin", req.CredentialRef)
		assert.Equal(t, "enricher-trace-1", req.AccessedBy)

		json.NewEncoder(w).Encode(Credential{Username: "admin", Password: "secret"})
	}))
	defer srv.Close()

	cred, err := NewHTTPResolver(srv.URL, zap.NewNop()).
		Resolve(context.Background(), "kv/prod/win-admin", "enricher-trace-1")

	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "admin", cred.Username)
}

func TestHTTPResolverNotFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cred, err := NewHTTPResolver(srv.URL, zap.NewNop()).
		Resolve(context.Background(), "kv/missing", "enricher-t")

	require.NoError(t, err)
	assert.Nil(t, cred, "404 means unresolvable, not transport failure")
}

func TestHTTPResolverEmptyBodyMeansUnresolvable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cred, err := NewHTTPResolver(srv.URL, zap.NewNop()).
		Resolve(context.Background(), "kv/empty", "enricher-t")

	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestHTTPResolverServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPResolver(srv.URL, zap.NewNop()).
		Resolve(context.Background(), "kv/prod/win-admin", "enricher-t")

	require.Error(t, err)
	assert.NotContains(t, err.Error(), "win-admin", "error must carry masked ref only")
}
