package rhythm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robmorgan/halolink/clock"
)

func b(f float64) Beats { return BeatsFromFloat(f) }

func TestPhaseWrapsNegativeBeats(t *testing.T) {
	t.Parallel()

	require.Equal(t, b(3), Phase(b(-1), b(4)))
	require.Equal(t, b(0), Phase(b(-4), b(4)))
	require.Equal(t, b(1.5), Phase(b(5.5), b(4)))
	require.Equal(t, b(0), Phase(b(7), 0))
}

func TestPhaseAlwaysInRange(t *testing.T) {
	t.Parallel()

	q := b(3)
	for beat := b(-20); beat < b(20); beat += b(0.37) {
		p := Phase(beat, q)
		require.GreaterOrEqual(t, p, Beats(0))
		require.Less(t, p, q)
	}
}

func TestNextPhaseMatch(t *testing.T) {
	t.Parallel()

	require.Equal(t, b(4), NextPhaseMatch(b(2.5), b(0), b(4)))
	require.Equal(t, b(2.5), NextPhaseMatch(b(2.5), b(10.5), b(4)))
	require.Equal(t, b(-3), NextPhaseMatch(b(-3.5), b(1), b(4)))
	require.Equal(t, b(2.5), NextPhaseMatch(b(2.5), b(0), 0))
}

func TestClosestPhaseMatch(t *testing.T) {
	t.Parallel()

	require.Equal(t, b(4), ClosestPhaseMatch(b(3.2), b(0), b(4)))
	require.Equal(t, b(0), ClosestPhaseMatch(b(1.2), b(0), b(4)))
	require.Equal(t, b(9), ClosestPhaseMatch(b(9.9), b(1), b(4)))
}

func TestPhaseEncodingRoundTrip(t *testing.T) {
	t.Parallel()

	tl := Timeline{Tempo: 120, BeatOrigin: b(0.75), TimeOrigin: 1_000_000}
	q := b(4)
	for _, beat := range []float64{-9.3, -1, 0, 0.2, 3.9, 5.3, 17.25, 1000.125} {
		at := FromPhaseEncodedBeats(tl, b(beat), q)
		require.InDelta(t, beat, ToPhaseEncodedBeats(tl, at, q).Float(), 1e-5, "beat %v", beat)
	}
}

func TestPhaseEncodedBeatsStayNearRawBeats(t *testing.T) {
	t.Parallel()

	tl := Timeline{Tempo: 97, BeatOrigin: b(2.3), TimeOrigin: 0}
	q := b(4)
	for at := clock.Instant(0); at < clock.Instant(20_000_000); at += 123_457 {
		raw := tl.ToBeats(at)
		enc := ToPhaseEncodedBeats(tl, at, q)
		require.LessOrEqual(t, (enc - raw), q/2)
		require.GreaterOrEqual(t, (enc - raw), -q/2)
		// phase is measured from the time origin
		require.Equal(t, Phase(raw-tl.BeatOrigin, q), Phase(enc, q))
	}
}

func TestQuantum(t *testing.T) {
	t.Parallel()

	require.Equal(t, b(4), Quantum(4))
	require.Equal(t, Beats(0), Quantum(0))
	require.Equal(t, Beats(0), Quantum(-2))
}
