package rhythm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robmorgan/halolink/clock"
)

func TestTimelineSlope(t *testing.T) {
	t.Parallel()

	for _, tempo := range []Tempo{60, 120, 133.3, 174} {
		tl := Timeline{Tempo: tempo, BeatOrigin: b(-3), TimeOrigin: 500}
		t1 := clock.Instant(1_234_567)
		t2 := clock.Instant(9_876_543)
		want := float64(tempo) * float64(t2-t1) / 60e6
		got := tl.ToBeats(t2).Float() - tl.ToBeats(t1).Float()
		require.InDelta(t, want, got, 1e-5, "tempo %v", tempo)
	}
}

func TestTimelineRoundTrip(t *testing.T) {
	t.Parallel()

	tl := Timeline{Tempo: 120, BeatOrigin: b(8), TimeOrigin: 2_000_000}
	require.Equal(t, b(8), tl.ToBeats(2_000_000))
	require.Equal(t, b(9), tl.ToBeats(2_500_000))
	require.Equal(t, clock.Instant(1_500_000), tl.FromBeats(b(7)))
	require.Equal(t, b(-1.25), tl.ToBeats(tl.FromBeats(b(-1.25))))
}

func TestShiftTimeline(t *testing.T) {
	t.Parallel()

	tl := Timeline{Tempo: 120, BeatOrigin: 0, TimeOrigin: 0}
	shifted := ShiftTimeline(tl, b(1))
	require.Equal(t, tl.BeatOrigin, shifted.BeatOrigin)
	for _, at := range []clock.Instant{0, 250_000, 3_000_000} {
		require.Equal(t, tl.ToBeats(at)+b(1), shifted.ToBeats(at))
	}
}

func TestWithTempoKeepsPivotBeat(t *testing.T) {
	t.Parallel()

	tl := Timeline{Tempo: 120, BeatOrigin: b(2), TimeOrigin: 0}
	pivot := clock.Instant(3_000_000)
	before := tl.ToBeats(pivot)

	faster := tl.WithTempo(140, pivot)
	require.Equal(t, Tempo(140), faster.Tempo)
	require.Equal(t, tl.BeatOrigin, faster.BeatOrigin)
	require.InDelta(t, before.Float(), faster.ToBeats(pivot).Float(), 1e-5)
	require.InDelta(t, before.Float()+140.0/60, faster.ToBeats(pivot.AddSeconds(1)).Float(), 1e-5)
}

func TestClampTempo(t *testing.T) {
	t.Parallel()

	require.Equal(t, MinTempo, Tempo(5).Clamp())
	require.Equal(t, MaxTempo, Tempo(5000).Clamp())
	require.Equal(t, Tempo(128), Tempo(128).Clamp())
}

func TestClientFromSessionKeepsMagnitude(t *testing.T) {
	t.Parallel()

	client := Timeline{Tempo: 120, BeatOrigin: b(100), TimeOrigin: 0}
	session := Timeline{Tempo: 130, BeatOrigin: 0, TimeOrigin: 700_000}
	at := clock.Instant(5_000_000)

	updated := ClientFromSession(client, session, at)
	require.Equal(t, Tempo(130), updated.Tempo)
	require.Equal(t, session.FromBeats(0), updated.TimeOrigin)
	require.InDelta(t, client.ToBeats(at).Float(), updated.ToBeats(at).Float(), 1e-5)
}

func TestSessionFromClient(t *testing.T) {
	t.Parallel()

	session := Timeline{Tempo: 120, BeatOrigin: 0, TimeOrigin: 0}
	at := clock.Instant(4_000_000)

	// client origin at session beat zero with the same tempo changes nothing
	same := Timeline{Tempo: 120, BeatOrigin: b(42), TimeOrigin: 0}
	require.Equal(t, session, SessionFromClient(session, same, at))

	// a new tempo keeps beat zero at the client origin and never moves the origin back
	faster := Timeline{Tempo: 150, BeatOrigin: b(42), TimeOrigin: 0}
	updated := SessionFromClient(session, faster, at)
	require.Equal(t, Tempo(150), updated.Tempo)
	require.Equal(t, session.ToBeats(at), updated.BeatOrigin)
	require.Equal(t, Beats(0), updated.ToBeats(faster.TimeOrigin))
}
