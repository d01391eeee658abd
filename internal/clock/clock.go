// Package clock abstracts time for testability. Production code
// injects Real(); tests inject Fake(initial) and drive it with
// Advance, so every timer property is checked deterministically
// instead of sleeping.
package clock

import "time"

// Clock is the time source injected into every component that reads
// the current instant or arms a future callback.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc arms f to run once d has elapsed and returns a Timer
	// whose Stop cancels the pending call.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0, same as time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Timer is a pending AfterFunc callback.
type Timer struct {
	stop func() bool
}

// Stop prevents the timer from firing. Returns false if it already
// fired or was already stopped.
func (t *Timer) Stop() bool {
	return t.stop()
}

// Ticker delivers periodic ticks on C. The channel has capacity 1;
// ticks the consumer misses are dropped, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. It does not close C.
func (t *Ticker) Stop() {
	t.stop()
}
