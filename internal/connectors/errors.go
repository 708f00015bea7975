package connectors

import (
	"fmt"
	"time"
)

// ThrottleError сигнализирует, что Runner попросил притормозить (HTTP 429).
// ReliabilityWrapper использует RetryAfter вместо стандартного бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
