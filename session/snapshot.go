package session

import (
	"math"

	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/rhythm"
)

// DefaultTempo is reported by a Snapshot that was never captured.
const DefaultTempo = 120.0

// state is what a snapshot carries between capture and commit.
type state struct {
	timeline  rhythm.Timeline
	startStop rhythm.StartStopState
}

// Snapshot is a local copy of the session timeline and transport state. Mutators change
// only this copy; nothing reaches the session until the snapshot is committed on the
// path it was captured from. The zero Snapshot is "not captured": its readers return
// defaults and its mutators and commits fail with ErrNotCaptured.
//
// Snapshots are meant to be short lived. Capture a fresh one rather than keeping one
// around.
type Snapshot struct {
	original       state
	current        state
	respectQuantum bool
	captured       bool
}

func newSnapshot(st state, respectQuantum bool) Snapshot {
	return Snapshot{original: st, current: st, respectQuantum: respectQuantum, captured: true}
}

// Captured reports whether the snapshot came from a session.
func (s Snapshot) Captured() bool { return s.captured }

// Tempo returns the timeline tempo in beats per minute.
func (s Snapshot) Tempo() float64 {
	if !s.captured {
		return DefaultTempo
	}
	return s.current.timeline.Tempo.BPM()
}

// SetTempo changes the tempo, keeping the beat at atTime where it is. Tempos outside
// [rhythm.MinTempo, rhythm.MaxTempo] are clamped.
func (s *Snapshot) SetTempo(bpm float64, atTime clock.Instant) error {
	if !s.captured {
		return ErrNotCaptured
	}
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return ErrInvalidTempo
	}
	s.current.timeline = s.current.timeline.WithTempo(rhythm.Tempo(bpm).Clamp(), atTime)
	return nil
}

// BeatAtTime returns the beat at t. Its magnitude is local to this peer, its phase with
// respect to quantum is shared with every peer in the session.
func (s Snapshot) BeatAtTime(t clock.Instant, quantum float64) float64 {
	if !s.captured {
		return 0
	}
	return s.beatAt(t, rhythm.Quantum(quantum)).Float()
}

// PhaseAtTime returns the position within the quantum at t, in [0, quantum).
func (s Snapshot) PhaseAtTime(t clock.Instant, quantum float64) float64 {
	if !s.captured {
		return 0
	}
	q := rhythm.Quantum(quantum)
	return rhythm.Phase(s.beatAt(t, q), q).Float()
}

// TimeAtBeat returns the instant at which beat occurs. The quantum only selects which
// quantum-aligned encoding of beat is inverted; the slope is the tempo's.
func (s Snapshot) TimeAtBeat(beat float64, quantum float64) clock.Instant {
	if !s.captured {
		return 0
	}
	return rhythm.FromPhaseEncodedBeats(s.current.timeline, rhythm.BeatsFromFloat(beat), rhythm.Quantum(quantum))
}

// RequestBeatAtTime maps beat to atTime. When other peers were present at capture, the
// mapping moves to the first instant at or after atTime whose session phase matches the
// phase of beat, so the group's phase is left alone.
func (s *Snapshot) RequestBeatAtTime(beat float64, atTime clock.Instant, quantum float64) error {
	if !s.captured {
		return ErrNotCaptured
	}
	if !(quantum > 0) {
		return ErrInvalidQuantum
	}
	q := rhythm.Quantum(quantum)
	b := rhythm.BeatsFromFloat(beat)
	if s.respectQuantum {
		next := rhythm.NextPhaseMatch(s.beatAt(atTime, q), b, q)
		atTime = rhythm.FromPhaseEncodedBeats(s.current.timeline, next, q)
	}
	s.forceBeatAt(b, atTime, q)
	return nil
}

// ForceBeatAtTime maps beat to exactly atTime, shifting the session phase for every peer.
// Use it to bridge an external clock; RequestBeatAtTime is the polite variant.
func (s *Snapshot) ForceBeatAtTime(beat float64, atTime clock.Instant, quantum float64) error {
	if !s.captured {
		return ErrNotCaptured
	}
	if !(quantum > 0) {
		return ErrInvalidQuantum
	}
	s.forceBeatAt(rhythm.BeatsFromFloat(beat), atTime, rhythm.Quantum(quantum))
	return nil
}

func (s *Snapshot) forceBeatAt(beat rhythm.Beats, atTime clock.Instant, q rhythm.Beats) {
	// phase shift first, then the magnitude in whole quanta
	cur := s.beatAt(atTime, q)
	closest := rhythm.ClosestPhaseMatch(cur, beat, q)
	tl := rhythm.ShiftTimeline(s.current.timeline, closest-cur)
	tl.BeatOrigin += beat - closest
	s.current.timeline = tl
}

func (s Snapshot) beatAt(t clock.Instant, q rhythm.Beats) rhythm.Beats {
	return rhythm.ToPhaseEncodedBeats(s.current.timeline, t, q)
}

// TransportState returns the target transport state, in effect or scheduled.
func (s Snapshot) TransportState() rhythm.TransportState {
	return s.current.startStop.State
}

// IsPlaying reports whether the transport is playing or scheduled to play.
func (s Snapshot) IsPlaying() bool {
	return s.current.startStop.IsPlaying()
}

// TransportStateTime returns when the transport state took or takes effect. It is zero
// if the transport was never set.
func (s Snapshot) TransportStateTime() clock.Instant {
	return s.current.startStop.Time
}

// SetTransportStateAt schedules state to take effect at atTime.
func (s *Snapshot) SetTransportStateAt(st rhythm.TransportState, atTime clock.Instant) error {
	if !s.captured {
		return ErrNotCaptured
	}
	s.current.startStop = rhythm.StartStopState{State: st, Time: atTime}
	return nil
}

// SetIsPlaying is SetTransportStateAt for a boolean state.
func (s *Snapshot) SetIsPlaying(playing bool, atTime clock.Instant) error {
	return s.SetTransportStateAt(rhythm.StateOf(playing), atTime)
}

func (s *Snapshot) StartTransportAt(atTime clock.Instant) error {
	return s.SetTransportStateAt(rhythm.Playing, atTime)
}

func (s *Snapshot) StopTransportAt(atTime clock.Instant) error {
	return s.SetTransportStateAt(rhythm.Stopped, atTime)
}

// RequestBeatAtTransportStateTime maps beat to the transport start time. It does nothing
// while the transport is stopped.
func (s *Snapshot) RequestBeatAtTransportStateTime(beat, quantum float64) error {
	if !s.captured {
		return ErrNotCaptured
	}
	if !s.IsPlaying() {
		return nil
	}
	return s.RequestBeatAtTime(beat, s.current.startStop.Time, quantum)
}

// StartTransportAndRequestBeatAt starts the transport at atTime and maps beat to it.
func (s *Snapshot) StartTransportAndRequestBeatAt(beat float64, atTime clock.Instant, quantum float64) error {
	if s.captured && !(quantum > 0) {
		return ErrInvalidQuantum
	}
	if err := s.StartTransportAt(atTime); err != nil {
		return err
	}
	return s.RequestBeatAtTransportStateTime(beat, quantum)
}

func (s Snapshot) timelineChanged() bool  { return s.current.timeline != s.original.timeline }
func (s Snapshot) startStopChanged() bool { return s.current.startStop != s.original.startStop }
