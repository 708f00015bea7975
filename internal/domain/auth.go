package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — клеймы сервисного токена, выпущенного Console API.
// UserID попадает в каждую запись аудита как инициатор запроса.
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "automation.execute": true
	jwt.RegisteredClaims
}
