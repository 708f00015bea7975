// Package enrich реализует Execution Enricher: резолв хоста в connection
// profile, резолв credential reference в секрет и инъекцию connection-параметров
// в запрос перед диспатчем на транспорт (WinRM/SSH).
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/devit-automation-service/internal/asset"
	"github.com/xela07ax/devit-automation-service/internal/registry"
	"github.com/xela07ax/devit-automation-service/internal/secrets"
	"go.uber.org/zap"
)

// Дефолтные порты протоколов, если инвентарь не указал свои.
const (
	defaultWinRMPort = 5985
	defaultSSHPort   = 22
)

// RuntimeSwitch — live-переключатель обогащения (реализуется engine.EnrichSwitch
// поверх Redis). nil означает «всегда включено».
type RuntimeSwitch interface {
	Enabled(tool string) bool
}

type Enricher struct {
	assets  asset.Facade
	secrets secrets.Resolver
	enabled bool // статический флаг из конфига (EXEC_ENRICH_ENABLE)
	runtime RuntimeSwitch
	logger  *zap.Logger
}

func NewEnricher(assets asset.Facade, sec secrets.Resolver, enabled bool, runtime RuntimeSwitch, logger *zap.Logger) *Enricher {
	return &Enricher{
		assets:  assets,
		secrets: sec,
		enabled: enabled,
		runtime: runtime,
		logger:  logger.With(zap.String("mod", "enricher")),
	}
}

// Enrich принимает определение инструмента и параметры вызова, возвращает
// tagged-результат: Enriched / Skipped / Failed. Исходная мапа параметров
// никогда не мутируется; при Skipped и Failed наружу уходит она же.
// Внутренних ретраев нет: неудачный lookup репортится один раз.
func (e *Enricher) Enrich(ctx context.Context, tool *registry.ToolDefinition, params map[string]interface{}, traceID string) (res Result) {
	start := time.Now()
	log := e.logger.With(zap.String("trace_id", traceID), zap.String("tool", tool.Name))

	// Граница исключений: что бы ни взорвалось внутри — наружу уходит
	// enrichment_failed, а не паника в tool-dispatch слое.
	defer func() {
		if r := recover(); r != nil {
			log.Error("enrichment panicked", zap.Any("panic", r))
			res = failed(params, &Error{
				Kind:     ErrEnrichmentFailed,
				Message:  fmt.Sprintf("unexpected failure: %v", r),
				HowToFix: "Internal enrichment error. Check automation-service logs for details.",
			})
		}
	}()

	// --- Прекондиции: молчаливый passthrough, строго по порядку ---

	// 1. Выключено конфигом или runtime-сигналом
	if !e.enabled || (e.runtime != nil && !e.runtime.Enabled(tool.Name)) {
		return skipped(params, SkipDisabled)
	}

	// 2. У инструмента нет auth-метаданных — обогащать нечего
	if tool.Auth == nil {
		return skipped(params, SkipNoAuth)
	}

	// 3. Auth-блок есть, но неполный
	if tool.Auth.Protocol == "" || len(tool.Auth.Needs) == 0 {
		return skipped(params, SkipIncompleteAuth)
	}

	// 4. Вызов не передал все параметры из needs.
	// Политика: частичная поставка НЕ ошибка, она отключает обогащение.
	for _, name := range tool.Auth.Needs {
		if isFalsy(params[name]) {
			log.Debug("enrichment skipped: declared need not supplied", zap.String("need", name))
			return skipped(params, SkipNeedsNotSupplied)
		}
	}

	// 5. Без host резолвить нечего
	host, _ := params["host"].(string)
	if host == "" {
		log.Warn("enrichment skipped: no host parameter")
		return skipped(params, SkipHostMissing)
	}

	// --- Основной путь ---

	// Резолв хоста в connection profile
	assetStart := time.Now()
	lookup, err := e.assets.GetConnectionProfile(ctx, host)
	assetLatency := time.Since(assetStart)
	if err != nil {
		log.Error("asset lookup failed", zap.Duration("latency", assetLatency), zap.Error(err))
		return failed(params, &Error{
			Kind:     ErrEnrichmentFailed,
			Message:  fmt.Sprintf("asset lookup failed: %v", err),
			HowToFix: "Internal enrichment error. Check automation-service logs for details.",
		})
	}
	log.Debug("asset lookup done", zap.Duration("latency", assetLatency), zap.Bool("found", lookup.Found))

	// Единственное место, где отказ виден наружу: host требовался явно
	if !lookup.Found {
		if lookup.Error == asset.ErrAmbiguousAsset {
			return failed(params, &Error{
				Kind:       ErrAmbiguousAsset,
				Message:    fmt.Sprintf("host %q matches multiple assets", host),
				HowToFix:   "Specify the host more precisely (FQDN or asset ID) to disambiguate.",
				Candidates: lookup.Candidates,
			})
		}
		return failed(params, &Error{
			Kind:     ErrAssetNotFound,
			Message:  fmt.Sprintf("host %q is not known to the asset inventory", host),
			HowToFix: "Add the host to the asset inventory, then retry.",
		})
	}

	// Выбор протокольной ветки
	profile, ok := lookup.Protocols[tool.Auth.Protocol]
	if !ok {
		return failed(params, &Error{
			Kind:               ErrProtocolNotAvailable,
			Message:            fmt.Sprintf("host %q has no %s connection profile", host, tool.Auth.Protocol),
			HowToFix:           "Reconfigure the asset to expose the required protocol.",
			AvailableProtocols: lookup.AvailableProtocols(),
		})
	}

	if profile.CredentialRef == "" {
		return failed(params, &Error{
			Kind:           ErrMissingCredentials,
			Message:        fmt.Sprintf("no credentials stored for host %q (%s)", host, tool.Auth.Protocol),
			HowToFix:       "Store connection credentials for this asset in the secrets manager.",
			RequiredFields: []string{"username", "password"},
		})
	}

	// Резолв секрета. Значение не логируем ни при каком исходе.
	secretStart := time.Now()
	cred, err := e.secrets.Resolve(ctx, profile.CredentialRef, "enricher-"+traceID)
	secretLatency := time.Since(secretStart)
	if err != nil {
		log.Error("secret resolution failed", zap.Duration("latency", secretLatency),
			zap.String("ref", secrets.Mask(profile.CredentialRef)), zap.Error(err))
		return failed(params, &Error{
			Kind:     ErrEnrichmentFailed,
			Message:  fmt.Sprintf("secret resolution failed: %v", err),
			HowToFix: "Internal enrichment error. Check automation-service logs for details.",
		})
	}
	log.Debug("secret resolution done", zap.Duration("latency", secretLatency))

	if cred == nil {
		return failed(params, &Error{
			Kind:          ErrSecretUnavailable,
			Message:       "credential reference exists but the secret store cannot resolve it",
			HowToFix:      "Re-import the secret for this credential reference into the secrets manager.",
			CredentialRef: secrets.Mask(profile.CredentialRef),
		})
	}

	// Инъекция: копия параметров вызова + connection-данные
	out := make(map[string]interface{}, len(params)+6)
	for k, v := range params {
		out[k] = v
	}
	injected := []string{"username", "password"}
	out["username"] = cred.Username
	out["password"] = cred.Password

	switch tool.Auth.Protocol {
	case "winrm":
		port := profile.Port
		if port == 0 {
			port = defaultWinRMPort
		}
		out["port"] = port
		out["use_ssl"] = profile.UseSSL
		injected = append(injected, "port", "use_ssl")
		if profile.Domain != "" {
			out["domain"] = profile.Domain
			injected = append(injected, "domain")
		}
	case "ssh":
		port := profile.Port
		if port == 0 {
			port = defaultSSHPort
		}
		out["port"] = port
		injected = append(injected, "port")
		if cred.PrivateKey != "" {
			if err := secrets.CheckPrivateKey(cred.PrivateKey); err != nil {
				log.Warn("ssh private key does not parse, injecting anyway",
					zap.String("ref", secrets.Mask(profile.CredentialRef)))
			}
			out["private_key"] = cred.PrivateKey
			injected = append(injected, "private_key")
		}
	}

	// Логируем только ИМЕНА инжектированных параметров
	log.Info("execution enriched",
		zap.String("protocol", tool.Auth.Protocol),
		zap.Strings("injected", injected),
		zap.Duration("total_latency", time.Since(start)),
	)

	return enriched(out)
}

// isFalsy повторяет семантику проверки needs в первой версии сервиса:
// отсутствующее, пустое или нулевое значение отключает обогащение.
func isFalsy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case int:
		return t == 0
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}
