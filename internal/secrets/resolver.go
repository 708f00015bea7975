// Package secrets отвечает за резолв credential reference в секретный материал.
// Секреты НИКОГДА не попадают в логи и в записи аудита — наружу уходят только
// имена полей и латентность резолва. Материал живет ровно столько, сколько
// обогащенная мапа параметров текущего запроса.
package secrets

import (
	"context"

	"golang.org/x/crypto/ssh"
)

// Credential — разрезолвленный секрет для подключения к целевому хосту.
type Credential struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	PrivateKey string `json:"private_key,omitempty"` // PEM, только для SSH
}

// Resolver — интерфейс брокера секретов (внешний коллаборатор).
// accessedBy — аудит-метка вызывающего контекста ("enricher-<trace_id>"),
// брокер ведет собственный access log по этой метке.
// Возврат (nil, nil) означает «ссылка есть, но секрет не разрезолвился».
type Resolver interface {
	Resolve(ctx context.Context, credentialRef string, accessedBy string) (*Credential, error)
}

// CheckPrivateKey проверяет, что PEM-материал вообще парсится как SSH-ключ.
// Битый ключ не блокирует инъекцию (транспорт отработает свою ошибку),
// но предупреждение в логе экономит часы отладки.
func CheckPrivateKey(pemData string) error {
	_, err := ssh.ParsePrivateKey([]byte(pemData))
	return err
}

// Mask сокращает ссылку для логов: "ref-prod-winrm-01" -> "ref-***-01".
// Сама ссылка не секрет, но по ней видно топологию хранилища.
func Mask(ref string) string {
	if len(ref) <= 8 {
		return "***"
	}
	return ref[:4] + "***" + ref[len(ref)-2:]
}
