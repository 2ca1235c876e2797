package outbox

import "time"

// Backoff returns base * 2^retryCount capped at max. A max below base caps at base.
func Backoff(base, max time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}
	if max < base {
		max = base
	}
	d := base
	for i := 0; i < retryCount; i++ {
		if d > max/2 {
			return max
		}
		d *= 2
	}
	return d
}
