package worker

import "time"

const maxBackoff = time.Minute

// backoffDelay doubles per delivery attempt: 1s, 2s, 4s ... capped at
// maxBackoff.
func backoffDelay(numDelivered uint64) time.Duration {
	if numDelivered < 1 {
		numDelivered = 1
	}
	if numDelivered > 32 {
		numDelivered = 32
	}
	d := time.Second << (numDelivered - 1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d
}
