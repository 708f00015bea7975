package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/devit-automation-service/internal/asset"
	"github.com/xela07ax/devit-automation-service/internal/registry"
	"github.com/xela07ax/devit-automation-service/internal/secrets"
	"go.uber.org/zap"
)

// --- Фейки внешних коллабораторов ---

type fakeFacade struct {
	lookups map[string]*asset.ProfileLookup
	err     error
	calls   int
}

func (f *fakeFacade) GetConnectionProfile(_ context.Context, host string) (*asset.ProfileLookup, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if l, ok := f.lookups[host]; ok {
		return l, nil
	}
	return &asset.ProfileLookup{Found: false, Error: asset.ErrAssetNotFound}, nil
}

type fakeResolver struct {
	creds          map[string]*secrets.Credential
	err            error
	lastAccessedBy string
}

func (f *fakeResolver) Resolve(_ context.Context, ref, accessedBy string) (*secrets.Credential, error) {
	f.lastAccessedBy = accessedBy
	if f.err != nil {
		return nil, f.err
	}
	return f.creds[ref], nil
}

type staticSwitch bool

func (s staticSwitch) Enabled(string) bool { return bool(s) }

func newTestEnricher(facade *fakeFacade, resolver *fakeResolver) *Enricher {
	return NewEnricher(facade, resolver, true, nil, zap.NewNop())
}

func winrmTool() *registry.ToolDefinition {
	return &registry.ToolDefinition{
		Name: "windows_list_directory",
		Auth: &registry.AuthSpec{Protocol: "winrm", Needs: []string{"host"}},
	}
}

// --- Прекондиции: молчаливый passthrough ---

func TestEnrichSkipsWhenToolHasNoAuth(t *testing.T) {
	facade := &fakeFacade{}
	e := newTestEnricher(facade, &fakeResolver{})

	params := map[string]interface{}{"host": "srv01", "path": "C:\\"}
	res := e.Enrich(context.Background(), &registry.ToolDefinition{Name: "ping_check"}, params, "t-1")

	assert.True(t, res.Skipped())
	assert.Equal(t, SkipNoAuth, res.SkipReason)
	assert.Equal(t, params, res.Params)
	assert.Zero(t, facade.calls, "asset facade must not be called on passthrough")
}

func TestEnrichSkipsWhenDisabled(t *testing.T) {
	t.Run("static flag", func(t *testing.T) {
		e := NewEnricher(&fakeFacade{}, &fakeResolver{}, false, nil, zap.NewNop())
		res := e.Enrich(context.Background(), winrmTool(), map[string]interface{}{"host": "srv01"}, "t-1")
		assert.Equal(t, SkipDisabled, res.SkipReason)
	})

	t.Run("runtime switch", func(t *testing.T) {
		e := NewEnricher(&fakeFacade{}, &fakeResolver{}, true, staticSwitch(false), zap.NewNop())
		res := e.Enrich(context.Background(), winrmTool(), map[string]interface{}{"host": "srv01"}, "t-1")
		assert.Equal(t, SkipDisabled, res.SkipReason)
	})
}

func TestEnrichSkipsOnIncompleteAuthBlock(t *testing.T) {
	cases := []struct {
		name string
		auth *registry.AuthSpec
	}{
		{"empty protocol", &registry.AuthSpec{Needs: []string{"host"}}},
		{"empty needs", &registry.AuthSpec{Protocol: "winrm"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnricher(&fakeFacade{}, &fakeResolver{})
			tool := &registry.ToolDefinition{Name: "x", Auth: tc.auth}
			res := e.Enrich(context.Background(), tool, map[string]interface{}{"host": "srv01"}, "t-1")
			assert.Equal(t, SkipIncompleteAuth, res.SkipReason)
		})
	}
}

func TestEnrichSkipsWhenNeedsNotSupplied(t *testing.T) {
	tool := &registry.ToolDefinition{
		Name: "windows_service_restart",
		Auth: &registry.AuthSpec{Protocol: "winrm", Needs: []string{"host", "service"}},
	}
	e := newTestEnricher(&fakeFacade{}, &fakeResolver{})

	// Частичная поставка needs — не ошибка, а отключение обогащения
	cases := []map[string]interface{}{
		{"host": "srv01"},                  // service отсутствует
		{"host": "srv01", "service": ""},   // пустая строка — falsy
		{"host": "srv01", "service": nil},  // nil — falsy
		{"host": "", "service": "spooler"}, // пустой host тоже need
	}
	for _, params := range cases {
		res := e.Enrich(context.Background(), tool, params, "t-1")
		assert.True(t, res.Skipped())
		assert.Equal(t, SkipNeedsNotSupplied, res.SkipReason)
		assert.Equal(t, params, res.Params)
	}
}

func TestEnrichSkipsWhenHostMissing(t *testing.T) {
	tool := &registry.ToolDefinition{
		Name: "windows_check",
		Auth: &registry.AuthSpec{Protocol: "winrm", Needs: []string{"path"}},
	}
	e := newTestEnricher(&fakeFacade{}, &fakeResolver{})

	res := e.Enrich(context.Background(), tool, map[string]interface{}{"path": "C:\\"}, "t-1")
	assert.Equal(t, SkipHostMissing, res.SkipReason)
}

// --- Основной путь: ошибки как данные ---

func TestEnrichAssetNotFound(t *testing.T) {
	e := newTestEnricher(&fakeFacade{}, &fakeResolver{})
	params := map[string]interface{}{"host": "ghost01"}

	res := e.Enrich(context.Background(), winrmTool(), params, "t-1")

	require.True(t, res.Failed())
	assert.Equal(t, ErrAssetNotFound, res.Err.Kind)
	assert.NotEmpty(t, res.Err.HowToFix)
	assert.Equal(t, params, res.Params, "original parameters must be preserved on failure")
}

func TestEnrichAmbiguousAsset(t *testing.T) {
	facade := &fakeFacade{lookups: map[string]*asset.ProfileLookup{
		"srv": {Found: false, Error: asset.ErrAmbiguousAsset, Candidates: []string{"srv01", "srv02"}},
	}}
	e := newTestEnricher(facade, &fakeResolver{})

	res := e.Enrich(context.Background(), winrmTool(), map[string]interface{}{"host": "srv"}, "t-1")

	require.True(t, res.Failed())
	assert.Equal(t, ErrAmbiguousAsset, res.Err.Kind)
	assert.Equal(t, []string{"srv01", "srv02"}, res.Err.Candidates)
}

func TestEnrichProtocolNotAvailable(t *testing.T) {
	facade := &fakeFacade{lookups: map[string]*asset.ProfileLookup{
		"srv01": {Found: true, Protocols: map[string]asset.ConnectionProfile{
			"ssh": {Port: 22, CredentialRef: "ref-ssh"},
		}},
	}}
	e := newTestEnricher(facade, &fakeResolver{})

	res := e.Enrich(context.Background(), winrmTool(), map[string]interface{}{"host": "srv01"}, "t-1")

	require.True(t, res.Failed())
	assert.Equal(t, ErrProtocolNotAvailable, res.Err.Kind)
	assert.Equal(t, []string{"ssh"}, res.Err.AvailableProtocols)
}

func TestEnrichMissingCredentials(t *testing.T) {
	facade := &fakeFacade{lookups: map[string]*asset.ProfileLookup{
		"srv01": {Found: true, Protocols: map[string]asset.ConnectionProfile{
			"winrm": {Port: 5985}, // ветка есть, credential_ref пустой
		}},
	}}
	e := newTestEnricher(facade, &fakeResolver{})

	res := e.Enrich(context.Background(), winrmTool(), map[string]interface{}{"host": "srv01"}, "t-1")

	require.True(t, res.Failed())
	assert.Equal(t, ErrMissingCredentials, res.Err.Kind)
	assert.Equal(t, []string{"username", "password"}, res.Err.RequiredFields)
}

func TestEnrichSecretUnavailable(t *testing.T) {
	facade := &fakeFacade{lookups: map[string]*asset.ProfileLookup{
		"srv01": {Found: true, Protocols: map[string]asset.ConnectionProfile{
			"winrm": {CredentialRef: "ref-lost"},
		}},
	}}
	// Резолвер отвечает (nil, nil): ссылка есть, секрета нет
	e := newTestEnricher(facade, &fakeResolver{})

	res := e.Enrich(context.Background(), winrmTool(), map[string]interface{}{"host": "srv01"}, "t-1")

	require.True(t, res.Failed())
	assert.Equal(t, ErrSecretUnavailable, res.Err.Kind)
	assert.NotContains(t, res.Err.CredentialRef, "ref-lost", "credential ref must be masked")
}

func TestEnrichConvertsInternalErrors(t *testing.T) {
	t.Run("asset facade error", func(t *testing.T) {
		e := newTestEnricher(&fakeFacade{err: errors.New("connection refused")}, &fakeResolver{})
		res := e.Enrich(context.Background(), winrmTool(), map[string]interface{}{"host": "srv01"}, "t-1")
		require.True(t, res.Failed())
		assert.Equal(t, ErrEnrichmentFailed, res.Err.Kind)
		assert.Contains(t, res.Err.Message, "connection refused")
	})

	t.Run("resolver error", func(t *testing.T) {
		facade := &fakeFacade{lookups: map[string]*asset.ProfileLookup{
			"srv01": {Found: true, Protocols: map[string]asset.ConnectionProfile{
				"winrm": {CredentialRef: "ref123"},
			}},
		}}
		e := newTestEnricher(facade, &fakeResolver{err: errors.New("broker down")})
		res := e.Enrich(context.Background(), winrmTool(), map[string]interface{}{"host": "srv01"}, "t-1")
		require.True(t, res.Failed())
		assert.Equal(t, ErrEnrichmentFailed, res.Err.Kind)
	})
}

// --- Успешная инъекция ---

func TestEnrichWinRMInjectsDefaults(t *testing.T) {
	facade := &fakeFacade{lookups: map[string]*asset.ProfileLookup{
		"srv01": {Found: true, Protocols: map[string]asset.ConnectionProfile{
			"winrm": {CredentialRef: "ref123"}, // порт не указан — дефолт 5985
		}},
	}}
	resolver := &fakeResolver{creds: map[string]*secrets.Credential{
		"ref123": {Username: "admin", Password: "secret"},
	}}
	e := newTestEnricher(facade, resolver)

	original := map[string]interface{}{"host": "srv01", "path": "C:\\"}
	res := e.Enrich(context.Background(), winrmTool(), original, "trace-42")

	require.True(t, res.Enriched())
	assert.Equal(t, map[string]interface{}{
		"host":     "srv01",
		"path":     "C:\\",
		"username": "admin",
		"password": "secret",
		"port":     5985,
		"use_ssl":  false,
	}, res.Params)

	// Вход не мутирован, аудит-метка корректна
	assert.Equal(t, map[string]interface{}{"host": "srv01", "path": "C:\\"}, original)
	assert.Equal(t, "enricher-trace-42", resolver.lastAccessedBy)
}

func TestEnrichWinRMProfileOverrides(t *testing.T) {
	facade := &fakeFacade{lookups: map[string]*asset.ProfileLookup{
		"dc01": {Found: true, Protocols: map[string]asset.ConnectionProfile{
			"winrm": {Port: 5986, UseSSL: true, Domain: "CORP", CredentialRef: "ref-dc"},
		}},
	}}
	resolver := &fakeResolver{creds: map[string]*secrets.Credential{
		"ref-dc": {Username: "svc", Password: "pw"},
	}}
	e := newTestEnricher(facade, resolver)

	res := e.Enrich(context.Background(), winrmTool(), map[string]interface{}{"host": "dc01"}, "t-1")

	require.True(t, res.Enriched())
	assert.Equal(t, 5986, res.Params["port"])
	assert.Equal(t, true, res.Params["use_ssl"])
	assert.Equal(t, "CORP", res.Params["domain"])
}

func TestEnrichSSHInjectsPortAndKey(t *testing.T) {
	tool := &registry.ToolDefinition{
		Name: "linux_disk_usage",
		Auth: &registry.AuthSpec{Protocol: "ssh", Needs: []string{"host"}},
	}
	facade := &fakeFacade{lookups: map[string]*asset.ProfileLookup{
		"web01": {Found: true, Protocols: map[string]asset.ConnectionProfile{
			"ssh": {CredentialRef: "ref-ssh"},
		}},
	}}
	resolver := &fakeResolver{creds: map[string]*secrets.Credential{
		"ref-ssh": {Username: "ops", Password: "pw", PrivateKey: "not-a-real-pem"},
	}}
	e := newTestEnricher(facade, resolver)

	res := e.Enrich(context.Background(), tool, map[string]interface{}{"host": "web01"}, "t-1")

	require.True(t, res.Enriched())
	assert.Equal(t, 22, res.Params["port"])
	// Битый ключ инжектится с предупреждением, транспорт разберется
	assert.Equal(t, "not-a-real-pem", res.Params["private_key"])
	_, hasSSL := res.Params["use_ssl"]
	assert.False(t, hasSSL, "use_ssl is a winrm-only parameter")
}
