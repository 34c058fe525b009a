package async

import (
	"context"
	"time"
)

// Debounce invokes handler with the most recently received value from
// eventsChan only after interval has elapsed without a new value arriving.
// A burst of events spaced closer than interval therefore collapses into a
// single handler call once the burst ends, rather than one call per event.
// Debounce blocks until ctx is cancelled.
func Debounce(ctx context.Context, interval time.Duration, eventsChan <-chan interface{}, handler func(event interface{})) {
	var timer *time.Timer
	var timerC <-chan time.Time
	var pending interface{}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventsChan:
			pending = event
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(interval)
			timerC = timer.C
		case <-timerC:
			handler(pending)
			timerC = nil
		}
	}
}
