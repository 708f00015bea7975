package asset

import (
	"context"
	"encoding/json"
	"fmt"
)

// Коды ошибок резолва хоста, приходят от инвентаря как есть.
const (
	ErrAssetNotFound  = "asset_not_found"
	ErrAmbiguousAsset = "ambiguous_asset"
)

// ConnectionProfile — параметры подключения для одного протокола (winrm/ssh/rdp).
// CredentialRef — непрозрачный ключ для Secrets Manager, сам секрет здесь не живет.
type ConnectionProfile struct {
	Port          int    `json:"port"`
	UseSSL        bool   `json:"use_ssl,omitempty"`
	Domain        string `json:"domain,omitempty"`
	CredentialRef string `json:"credential_ref"`
}

// ProfileLookup — ответ инвентаря на резолв хоста.
// Инвариант: Found=false ⇒ Error заполнен (и Candidates при ambiguous_asset).
type ProfileLookup struct {
	Found      bool
	Error      string
	Candidates []string
	// Протокольные ветки лежат в ответе на верхнем уровне: {"found":true,"winrm":{...}}
	Protocols map[string]ConnectionProfile
}

// Facade — интерфейс Asset-сервиса (внешний коллаборатор).
type Facade interface {
	GetConnectionProfile(ctx context.Context, host string) (*ProfileLookup, error)
}

// UnmarshalJSON разбирает плоский ответ инвентаря: служебные поля соседствуют
// с протокольными ветками, поэтому стандартного маппинга недостаточно.
func (p *ProfileLookup) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["found"]; ok {
		if err := json.Unmarshal(v, &p.Found); err != nil {
			return fmt.Errorf("field 'found': %w", err)
		}
		delete(raw, "found")
	}
	if v, ok := raw["error"]; ok {
		if err := json.Unmarshal(v, &p.Error); err != nil {
			return fmt.Errorf("field 'error': %w", err)
		}
		delete(raw, "error")
	}
	if v, ok := raw["candidates"]; ok {
		if err := json.Unmarshal(v, &p.Candidates); err != nil {
			return fmt.Errorf("field 'candidates': %w", err)
		}
		delete(raw, "candidates")
	}

	// Все остальные объектные поля считаем протокольными ветками
	p.Protocols = make(map[string]ConnectionProfile)
	for key, v := range raw {
		var profile ConnectionProfile
		if err := json.Unmarshal(v, &profile); err != nil {
			// Незнакомое скалярное поле — не протокол, пропускаем
			continue
		}
		p.Protocols[key] = profile
	}
	return nil
}

// AvailableProtocols возвращает имена протокольных веток
// (для сообщения protocol_not_available).
func (p *ProfileLookup) AvailableProtocols() []string {
	out := make([]string, 0, len(p.Protocols))
	for name := range p.Protocols {
		out = append(out, name)
	}
	return out
}
