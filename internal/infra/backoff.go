package infra

import "time"

const (
	baseDelay = 50 * time.Millisecond
	maxDelay  = 2 * time.Second
)

// CalculateBackoff returns the exponential backoff delay for the given
// retry count, capped at maxDelay.
func CalculateBackoff(retryCount int) time.Duration {
	delay := baseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}
