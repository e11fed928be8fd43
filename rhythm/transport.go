package rhythm

import "github.com/robmorgan/halolink/clock"

// TransportState is the play/stop indicator.
type TransportState int

const (
	Stopped TransportState = iota
	Playing
)

func (s TransportState) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

// StateOf maps a boolean to a TransportState.
func StateOf(playing bool) TransportState {
	if playing {
		return Playing
	}
	return Stopped
}

// StartStopState pairs a transport state with the instant it takes or took effect.
// A zero Time means the transport was never set.
type StartStopState struct {
	State TransportState
	Time  clock.Instant
}

// IsPlaying reports whether the target state is Playing.
func (s StartStopState) IsPlaying() bool { return s.State == Playing }

// Scheduled reports whether the state has not yet taken effect at now.
func (s StartStopState) Scheduled(now clock.Instant) bool { return s.Time.After(now) }

// Active reports whether the state is in effect at now.
func (s StartStopState) Active(now clock.Instant) bool { return !s.Scheduled(now) }
