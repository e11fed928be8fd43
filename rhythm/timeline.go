// Package rhythm converts between time, beats and phase on a tempo timeline.
package rhythm

import (
	"math"

	"github.com/robmorgan/halolink/clock"
)

const (
	// MinTempo and MaxTempo bound every committed tempo.
	MinTempo Tempo = 20
	MaxTempo Tempo = 999

	microsPerMinute = 60e6
	microBeats      = 1e6
)

// Beats is a beat position in micro-beats. Keeping beats integral makes the phase
// arithmetic exact.
type Beats int64

// BeatsFromFloat rounds a floating beat value to the nearest micro-beat.
func BeatsFromFloat(f float64) Beats {
	return Beats(math.Round(f * microBeats))
}

// Float returns the beat value as a float64.
func (b Beats) Float() float64 {
	return float64(b) / microBeats
}

// Tempo is expressed in beats per minute.
type Tempo float64

func (t Tempo) BPM() float64 { return float64(t) }

// MicrosPerBeat returns the length of one beat in microseconds.
func (t Tempo) MicrosPerBeat() float64 {
	return microsPerMinute / float64(t)
}

func (t Tempo) MicrosToBeats(d clock.Duration) Beats {
	return BeatsFromFloat(float64(d) / t.MicrosPerBeat())
}

func (t Tempo) BeatsToMicros(b Beats) clock.Duration {
	return clock.Duration(math.Round(b.Float() * t.MicrosPerBeat()))
}

// Clamp limits t to [MinTempo, MaxTempo].
func (t Tempo) Clamp() Tempo {
	if t < MinTempo {
		return MinTempo
	}
	if t > MaxTempo {
		return MaxTempo
	}
	return t
}

// Timeline anchors BeatOrigin at TimeOrigin and extrapolates with Tempo.
type Timeline struct {
	Tempo      Tempo
	BeatOrigin Beats
	TimeOrigin clock.Instant
}

// ToBeats returns the beat at time t.
func (tl Timeline) ToBeats(t clock.Instant) Beats {
	return tl.BeatOrigin + tl.Tempo.MicrosToBeats(t.Sub(tl.TimeOrigin))
}

// FromBeats returns the time at which beat b occurs.
func (tl Timeline) FromBeats(b Beats) clock.Instant {
	return tl.TimeOrigin.Add(tl.Tempo.BeatsToMicros(b - tl.BeatOrigin))
}

// ShiftTimeline slides tl along the time axis so that the beat at every instant grows by
// shift. The beat origin is left alone.
func ShiftTimeline(tl Timeline, shift Beats) Timeline {
	delta := tl.FromBeats(shift).Sub(tl.FromBeats(0))
	tl.TimeOrigin = tl.TimeOrigin.Add(-delta)
	return tl
}

// WithTempo returns tl running at tempo from atTime on, keeping the beat at atTime and
// the beat origin unchanged.
func (tl Timeline) WithTempo(tempo Tempo, atTime clock.Instant) Timeline {
	pivot := Timeline{Tempo: tempo, BeatOrigin: tl.ToBeats(atTime), TimeOrigin: atTime}
	return Timeline{Tempo: tempo, BeatOrigin: tl.BeatOrigin, TimeOrigin: pivot.FromBeats(tl.BeatOrigin)}
}

// ClientFromSession continues the client timeline cur at the session's tempo and slides
// its origin to the session's beat zero, so the client keeps its beat magnitude at atTime
// while adopting the session phase.
func ClientFromSession(cur, session Timeline, atTime clock.Instant) Timeline {
	tmp := Timeline{Tempo: session.Tempo, BeatOrigin: cur.ToBeats(atTime), TimeOrigin: atTime}
	beatZero := session.FromBeats(0)
	return Timeline{Tempo: tmp.Tempo, BeatOrigin: tmp.ToBeats(beatZero), TimeOrigin: beatZero}
}

// SessionFromClient folds a client timeline back into the session timeline. The client's
// time origin marks session beat zero. The session beat origin never moves backwards,
// peers use it to rank competing timelines.
func SessionFromClient(cur, client Timeline, atTime clock.Instant) Timeline {
	if cur.ToBeats(client.TimeOrigin) == 0 && client.Tempo == cur.Tempo {
		return cur
	}
	tmp := Timeline{Tempo: client.Tempo, BeatOrigin: 0, TimeOrigin: client.TimeOrigin}
	origin := cur.ToBeats(atTime)
	if cur.BeatOrigin > origin {
		origin = cur.BeatOrigin
	}
	return Timeline{Tempo: client.Tempo, BeatOrigin: origin, TimeOrigin: tmp.FromBeats(origin)}
}
