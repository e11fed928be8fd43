// Package clock provides the microsecond time base shared by sessions, snapshots and peers.
//
// Instants are monotonic microseconds since the clock's epoch. They are only meaningful
// relative to other instants read from the same Clock; peers on other hosts translate
// through a measured offset.
package clock

import (
	"time"

	k8sclock "k8s.io/utils/clock"
)

// Instant is a point on the clock, in microseconds.
type Instant int64

// Duration is a signed span between two instants, in microseconds.
type Duration int64

const (
	Microsecond Duration = 1
	Millisecond          = 1000 * Microsecond
	Second               = 1000 * Millisecond
)

// Micros returns a Duration of n microseconds.
func Micros(n int64) Duration { return Duration(n) }

// Millis returns a Duration of n milliseconds.
func Millis(n int64) Duration { return Duration(n) * Millisecond }

// Seconds returns a Duration of n seconds.
func Seconds(n int64) Duration { return Duration(n) * Second }

// FromStd converts a time.Duration, truncating to microseconds.
func FromStd(d time.Duration) Duration { return Duration(d.Microseconds()) }

func (d Duration) Micros() int64  { return int64(d) }
func (d Duration) Millis() int64  { return int64(d / Millisecond) }
func (d Duration) Seconds() int64 { return int64(d / Second) }

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) * time.Microsecond }

// Abs returns the absolute value of d.
func (d Duration) Abs() Duration {
	if d < 0 {
		return -d
	}
	return d
}

func (t Instant) Micros() int64 { return int64(t) }

// Add returns t+d.
func (t Instant) Add(d Duration) Instant { return t + Instant(d) }

// Sub returns the duration t-u.
func (t Instant) Sub(u Instant) Duration { return Duration(t - u) }

func (t Instant) AddMicros(n int64) Instant  { return t.Add(Micros(n)) }
func (t Instant) AddMillis(n int64) Instant  { return t.Add(Millis(n)) }
func (t Instant) AddSeconds(n int64) Instant { return t.Add(Seconds(n)) }

func (t Instant) Before(u Instant) bool { return t < u }
func (t Instant) After(u Instant) bool  { return t > u }

// Clock reads Instants from an underlying k8s clock. The epoch is fixed when the Clock is
// created; reads go through PassiveClock.Since so they stay on the monotonic reading.
type Clock struct {
	base  k8sclock.PassiveClock
	epoch time.Time
}

// New creates a Clock whose epoch is base.Now().
func New(base k8sclock.PassiveClock) *Clock {
	return &Clock{base: base, epoch: base.Now()}
}

// Now returns the current Instant.
func (c *Clock) Now() Instant {
	return Instant(c.base.Since(c.epoch).Microseconds())
}

// Time converts an Instant back to the wall time of the underlying clock.
func (c *Clock) Time(t Instant) time.Time {
	return c.epoch.Add(Duration(t).Std())
}

var process = New(k8sclock.RealClock{})

// Process returns the process-wide clock.
func Process() *Clock { return process }

// Now reads the process-wide clock.
func Now() Instant { return process.Now() }
