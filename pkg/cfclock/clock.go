// Package cfclock provides the monotonic millisecond/microsecond clock used
// by the scheduler (pkg/cftask) and the session idle timeout (pkg/cfsession),
// plus a Sleep that loops on the clock.
//
// It wraps github.com/jacobsa/timeutil.Clock, the same seam jacobsa-fuse's
// samples/memfs injects into its filesystem constructors, so tests can swap
// in a fake clock instead of sleeping in real time.
package cfclock

import (
	"sync/atomic"
	"time"

	"github.com/jacobsa/timeutil"
)

// Clock reads monotonic milliseconds and microseconds, never going backward
// even if the underlying wall clock jumps (NTP step, VM migration, etc).
type Clock struct {
	src  timeutil.Clock
	last int64 // last millis returned, for backward-jump clamping
}

// New wraps src. A nil src uses timeutil.RealClock().
func New(src timeutil.Clock) *Clock {
	if src == nil {
		src = timeutil.RealClock()
	}
	return &Clock{src: src}
}

var real = New(nil)

// NowMillis returns the shared real clock's current monotonic millisecond
// reading. Most callers that don't need a fake clock for testing use this.
func NowMillis() int64 { return real.NowMillis() }

// NowMicros is the microsecond equivalent of NowMillis.
func NowMicros() int64 { return real.NowMicros() }

// NowMillis returns monotonic milliseconds since the Unix epoch, clamped so
// that it never returns a value smaller than a previous call observed.
func (c *Clock) NowMillis() int64 {
	now := c.src.Now().UnixMilli()
	for {
		prev := atomic.LoadInt64(&c.last)
		if now <= prev {
			return prev
		}
		if atomic.CompareAndSwapInt64(&c.last, prev, now) {
			return now
		}
	}
}

// NowMicros is the microsecond equivalent of NowMillis, derived from the same
// clamped reading (sub-millisecond precision is not clamped independently).
func (c *Clock) NowMicros() int64 {
	now := c.src.Now().UnixMicro()
	if floor := c.NowMillis() * 1000; now < floor {
		return floor
	}
	return now
}

// Sleep blocks for at least d, looping on the clock so a spurious early
// wakeup (signal delivery, runtime preemption) cannot shorten the sleep.
// Sleep reads the underlying clock directly rather than through the
// clamped NowMillis, so that a backward wall-clock jump is observed as
// such and treated as "done" instead of stalling until the clamp value
// is caught up to by real time again.
func (c *Clock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	start := c.src.Now().UnixMilli()
	deadline := start + d.Milliseconds()
	for {
		now := c.src.Now().UnixMilli()
		if now < start {
			// Backward jump: we cannot know how much real time has
			// elapsed, so treat the sleep as satisfied rather than hang.
			return
		}
		remaining := deadline - now
		if remaining <= 0 {
			return
		}
		time.Sleep(time.Duration(remaining) * time.Millisecond)
	}
}

// Sleep is the package-level convenience form using the shared real clock.
func Sleep(d time.Duration) { real.Sleep(d) }
