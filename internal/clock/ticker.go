package clock

import (
	"context"
	"time"
)

// DurationFn lets a ticker vary its interval; production tickers pass a
// constant via Fixed.
type DurationFn func() time.Duration

// Fixed returns a DurationFn that always yields d.
func Fixed(d time.Duration) DurationFn {
	return func() time.Duration { return d }
}

// Run drives fn every interval() against c until ctx is cancelled,
// guaranteeing the loop stops within one tick period of cancellation
// (spec §5). Each invocation of fn is synchronous; the loop never
// overlaps handler invocations, matching the "tick handlers are
// mutually exclusive for that component" contract.
func Run(ctx context.Context, c Clock, interval DurationFn, fn func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.After(interval()):
			select {
			case <-ctx.Done():
				return
			default:
				fn()
			}
		}
	}
}
