package connectors

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// MockRunner имитирует Tool Runner для локальных запусков без транспорта.
type MockRunner struct{}

func (c *MockRunner) Call(ctx context.Context, tool string, payload []byte) ([]byte, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация работы
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	switch tool {
	case "windows_list_directory":
		return []byte(`{"status": "success", "entries": ["Windows", "Program Files", "Users"]}`), nil
	case "windows_service_restart":
		return []byte(`{"status": "success", "service": "spooler", "state": "running"}`), nil
	case "linux_disk_usage":
		return []byte(`{"status": "success", "usage_percent": 42}`), nil
	case "unstable.tool":
		return nil, fmt.Errorf("runner internal error")
	default:
		return nil, fmt.Errorf("tool %s not supported by runner", tool)
	}
}
