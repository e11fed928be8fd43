package rhythm

import (
	"golang.org/x/exp/constraints"

	"github.com/robmorgan/halolink/clock"
)

// floorMod is x mod m with the sign of m. m <= 0 yields 0.
func floorMod[T constraints.Signed](x, m T) T {
	if m <= 0 {
		return 0
	}
	r := x % m
	if r < 0 {
		r += m
	}
	return r
}

// Phase returns beats mod quantum in [0, quantum). Negative beats wrap, so -1 with a
// quantum of 4 has phase 3.
func Phase(beats, quantum Beats) Beats {
	return floorMod(beats, quantum)
}

// NextPhaseMatch returns the least value >= x whose phase equals the phase of target.
func NextPhaseMatch(x, target, quantum Beats) Beats {
	return x + floorMod(Phase(target, quantum)-Phase(x, quantum), quantum)
}

// ClosestPhaseMatch returns the value nearest x with the phase of target. It may be less
// than x but never by more than quantum/2.
func ClosestPhaseMatch(x, target, quantum Beats) Beats {
	return NextPhaseMatch(x-quantum/2, target, quantum)
}

// ToPhaseEncodedBeats treats the timeline origin as a quantum boundary and returns the beat
// at t carrying that phase. The result is within quantum/2 of tl.ToBeats(t).
func ToPhaseEncodedBeats(tl Timeline, t clock.Instant, quantum Beats) Beats {
	beat := tl.ToBeats(t)
	return ClosestPhaseMatch(beat, beat-tl.BeatOrigin, quantum)
}

// FromPhaseEncodedBeats inverts ToPhaseEncodedBeats.
func FromPhaseEncodedBeats(tl Timeline, beat, quantum Beats) clock.Instant {
	fromOrigin := beat - tl.BeatOrigin
	originOffset := fromOrigin - Phase(fromOrigin, quantum)
	// rounds up in the middle of the quantum, mirroring ToPhaseEncodedBeats
	inverse := ClosestPhaseMatch(quantum-Phase(fromOrigin, quantum), quantum-Phase(beat, quantum), quantum)
	return tl.FromBeats(tl.BeatOrigin + originOffset + quantum - inverse)
}

// Quantum converts a caller quantum to Beats. Non-positive quanta become 0, which the
// phase functions treat as "no quantization".
func Quantum(q float64) Beats {
	if q <= 0 {
		return 0
	}
	return BeatsFromFloat(q)
}
