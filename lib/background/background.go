package background

import (
	"sync"
	"time"
)

// Repeat calls do every interval on its own goroutine until cancel is called. cancel
// is safe to call more than once and from multiple goroutines.
func Repeat(do func(), interval time.Duration) (cancel func()) {
	t := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				do()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
		})
	}
}
