package registry

import (
	"context"
	"sync"
)

// AuthSpec — декларация аутентификации инструмента из каталога.
// Protocol выбирает семейство подключения (winrm/ssh), Needs перечисляет
// параметры, которые вызывающая сторона обязана передать, чтобы обогащение
// вообще включилось.
type AuthSpec struct {
	Protocol string   `json:"protocol"`
	Needs    []string `json:"needs"`
}

// ToolDefinition — метаданные инструмента. Auth опционален: инструменты без
// него (локальные, не требующие подключения к хосту) проходят мимо Enricher.
type ToolDefinition struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Auth        *AuthSpec         `json:"auth,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Registry — read-only интерфейс каталога инструментов (внешний коллаборатор).
// (nil, nil) — инструмент не зарегистрирован.
type Registry interface {
	Lookup(ctx context.Context, name string) (*ToolDefinition, error)
}

// StaticRegistry — in-memory реализация для локальных запусков и тестов.
// Потокобезопасна: каталог может подливаться на лету.
type StaticRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolDefinition
}

func NewStaticRegistry(tools []ToolDefinition) *StaticRegistry {
	m := make(map[string]ToolDefinition, len(tools))
	for _, t := range tools {
		m[t.Name] = t
	}
	return &StaticRegistry{tools: m}
}

func (r *StaticRegistry) Lookup(_ context.Context, name string) (*ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// Register добавляет или перезаписывает определение инструмента.
func (r *StaticRegistry) Register(t ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}
