package enrich

// Outcome — три исхода обогащения. Разделение Skipped/Failed принципиально:
// «нечего обогащать» и «обогащали и не смогли» нельзя путать на стороне вызова.
type Outcome string

const (
	OutcomeEnriched Outcome = "enriched"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// SkipReason — почему обогащение молча не включилось (не ошибка).
type SkipReason string

const (
	SkipDisabled         SkipReason = "enrichment_disabled"      // флаг/runtime-переключатель
	SkipNoAuth           SkipReason = "no_auth_metadata"         // у инструмента нет auth-блока
	SkipIncompleteAuth   SkipReason = "incomplete_auth_metadata" // protocol или needs пусты
	SkipNeedsNotSupplied SkipReason = "needs_not_supplied"       // вызов не передал требуемые параметры
	SkipHostMissing      SkipReason = "host_missing"             // нет host — резолвить нечего
)

// ErrorKind — таксономия ошибок обогащения. Уходит наружу как данные, не panic/error.
type ErrorKind string

const (
	ErrAmbiguousAsset       ErrorKind = "ambiguous_asset"
	ErrAssetNotFound        ErrorKind = "asset_not_found"
	ErrProtocolNotAvailable ErrorKind = "protocol_not_available"
	ErrMissingCredentials   ErrorKind = "missing_credentials"
	ErrSecretUnavailable    ErrorKind = "secret_unavailable"
	ErrEnrichmentFailed     ErrorKind = "enrichment_failed"
)

// Error — структурная ошибка обогащения. HowToFix показывается оператору.
type Error struct {
	Kind               ErrorKind `json:"error"`
	Message            string    `json:"message"`
	HowToFix           string    `json:"how_to_fix"`
	Candidates         []string  `json:"candidates,omitempty"`          // ambiguous_asset
	AvailableProtocols []string  `json:"available_protocols,omitempty"` // protocol_not_available
	RequiredFields     []string  `json:"required_fields,omitempty"`     // missing_credentials
	CredentialRef      string    `json:"credential_ref,omitempty"`      // secret_unavailable (маскированный)
}

// Result — tagged-результат обогащения.
// Params заполнен всегда: обогащенная копия при Enriched, ОРИГИНАЛ вызывающей
// стороны при Skipped и Failed (обогащение никогда не мутирует вход частично).
type Result struct {
	Outcome    Outcome
	Params     map[string]interface{}
	SkipReason SkipReason // только при Skipped
	Err        *Error     // только при Failed
}

func (r Result) Enriched() bool { return r.Outcome == OutcomeEnriched }
func (r Result) Skipped() bool  { return r.Outcome == OutcomeSkipped }
func (r Result) Failed() bool   { return r.Outcome == OutcomeFailed }

func enriched(params map[string]interface{}) Result {
	return Result{Outcome: OutcomeEnriched, Params: params}
}

func skipped(params map[string]interface{}, reason SkipReason) Result {
	return Result{Outcome: OutcomeSkipped, Params: params, SkipReason: reason}
}

func failed(params map[string]interface{}, err *Error) Result {
	return Result{Outcome: OutcomeFailed, Params: params, Err: err}
}
