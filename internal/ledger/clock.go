package ledger

import "time"

// Clock supplies block timestamps. Next returns the timestamp for a block
// that follows one stamped prev; genesis follows prev 0. Results must not
// be smaller than prev.
type Clock interface {
	Next(prev int64) int64
}

// CounterClock stamps each block one past its predecessor, yielding 1, 2,
// 3, ... from genesis. The sequence depends only on the chain, which keeps
// mined digests reproducible across runs and reloads.
type CounterClock struct{}

// Next implements Clock.
func (CounterClock) Next(prev int64) int64 { return prev + 1 }

// UnixClock stamps blocks with wall-clock seconds since the Unix epoch,
// held at prev if the wall clock is behind it.
type UnixClock struct{}

// Next implements Clock.
func (UnixClock) Next(prev int64) int64 {
	return max(time.Now().Unix(), prev)
}

// ClockByName returns the clock registered under name ("counter" or "unix").
func ClockByName(name string) (Clock, bool) {
	switch name {
	case "", "counter":
		return CounterClock{}, true
	case "unix":
		return UnixClock{}, true
	}
	return nil, false
}
