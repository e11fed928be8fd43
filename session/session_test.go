package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robmorgan/halolink/peer"
)

func TestNewRejectsInvalidTempo(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Tempo: 0})
	require.Error(t, err)
	_, err = New(Options{Tempo: -120})
	require.Error(t, err)
}

func TestNewClampsTempo(t *testing.T) {
	t.Parallel()

	_, c := newTestClock()
	s, err := New(Options{Tempo: 4000, Clock: c})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 999.0, s.CaptureAppSnapshot().Tempo())
	require.NotEmpty(t, s.NodeID())
}

func TestCommitAppSnapshot(t *testing.T) {
	t.Parallel()

	_, c := newTestClock()
	s := newTestSession(t, c, nil, "solo")

	snap := s.CaptureAppSnapshot()
	stale := snap
	require.NoError(t, snap.SetTempo(140, c.Now()))
	require.Equal(t, 120.0, stale.Tempo())
	require.Equal(t, 120.0, s.CaptureAppSnapshot().Tempo(), "uncommitted changes stay local")

	require.NoError(t, s.CommitAppSnapshot(snap))
	require.Equal(t, 140.0, s.CaptureAppSnapshot().Tempo())
}

func TestCommitUnchangedSnapshotKeepsState(t *testing.T) {
	t.Parallel()

	_, c := newTestClock()
	s := newTestSession(t, c, nil, "solo")

	stale := s.CaptureAppSnapshot()
	snap := s.CaptureAppSnapshot()
	require.NoError(t, snap.SetTempo(90, c.Now()))
	require.NoError(t, s.CommitAppSnapshot(snap))

	// nothing changed in stale, so it must not roll the tempo back
	require.NoError(t, s.CommitAppSnapshot(stale))
	require.Equal(t, 90.0, s.CaptureAppSnapshot().Tempo())
}

func TestCommitRejectsUncapturedSnapshot(t *testing.T) {
	t.Parallel()

	_, c := newTestClock()
	s := newTestSession(t, c, nil, "solo")
	require.ErrorIs(t, s.CommitAppSnapshot(Snapshot{}), ErrNotCaptured)
}

func TestClosedSession(t *testing.T) {
	t.Parallel()

	_, c := newTestClock()
	s, err := New(Options{Tempo: 120, Clock: c})
	require.NoError(t, err)

	snap := s.CaptureAppSnapshot()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.CommitAppSnapshot(snap), ErrClosed)
	require.ErrorIs(t, s.Enable(), ErrClosed)
	_, err = s.BindAudio()
	require.ErrorIs(t, err, ErrClosed)
}

func TestEnableDisablePreservesState(t *testing.T) {
	t.Parallel()

	fake, c := newTestClock()
	s := newTestSession(t, c, peer.NewHub(), "solo")

	snap := s.CaptureAppSnapshot()
	require.NoError(t, snap.SetTempo(128, c.Now()))
	require.NoError(t, snap.StartTransportAt(c.Now()))
	require.NoError(t, s.CommitAppSnapshot(snap))
	fake.Step(3 * time.Second)
	want := s.CaptureAppSnapshot()

	require.NoError(t, s.Enable())
	require.True(t, s.IsEnabled())
	require.NoError(t, s.Enable())
	got := s.CaptureAppSnapshot()
	require.Equal(t, want.current, got.current)

	require.NoError(t, s.Disable())
	require.False(t, s.IsEnabled())
	got = s.CaptureAppSnapshot()
	require.Equal(t, want.current, got.current)
	require.Equal(t, 0, s.PeerCount())
}

// joinedPair returns two sessions on one hub. a forces beat 0 at 1.3s before b joins, so
// the shared downbeats fall on 1.3s, 3.3s, 5.3s and so on.
func joinedPair(t *testing.T) (a, b *Session, step func(time.Duration)) {
	t.Helper()

	fake, c := newTestClock()
	hub := peer.NewHub()

	a = newTestSession(t, c, hub, "a")
	require.NoError(t, a.Enable())
	fake.Step(1300 * time.Millisecond)

	snap := a.CaptureAppSnapshot()
	require.NoError(t, snap.ForceBeatAtTime(0, c.Now(), 4))
	require.NoError(t, a.CommitAppSnapshot(snap))

	b = newTestSession(t, c, hub, "b")
	require.NoError(t, b.Enable())
	require.Equal(t, 1, a.PeerCount())
	require.Equal(t, 1, b.PeerCount())
	return a, b, fake.Step
}

func TestJoiningPeerAdoptsPhase(t *testing.T) {
	t.Parallel()

	a, b, step := joinedPair(t)
	now := a.Now()
	requirePhase(t, 0, a.CaptureAppSnapshot().PhaseAtTime(now, 4), 4)
	requirePhase(t, 0, b.CaptureAppSnapshot().PhaseAtTime(now, 4), 4)

	step(700 * time.Millisecond)
	now = a.Now()
	requirePhase(t, 1.4, a.CaptureAppSnapshot().PhaseAtTime(now, 4), 4)
	requirePhase(t, 1.4, b.CaptureAppSnapshot().PhaseAtTime(now, 4), 4)
}

func TestRequestBeatAtTimeKeepsGroupPhase(t *testing.T) {
	t.Parallel()

	a, b, step := joinedPair(t)
	step(700 * time.Millisecond)
	now := b.Now()

	snap := b.CaptureAppSnapshot()
	before := snap.PhaseAtTime(now, 4)
	require.NoError(t, snap.RequestBeatAtTime(0, now, 4))
	require.NoError(t, b.CommitAppSnapshot(snap))

	snap = b.CaptureAppSnapshot()
	requirePhase(t, before, snap.PhaseAtTime(now, 4), 4)
	// beat 0 lands on the next shared downbeat, 2.6 beats later
	require.InDelta(t, -2.6, snap.BeatAtTime(now, 4), tolerance)
	require.InDelta(t, 0.0, snap.BeatAtTime(now.AddMillis(1300), 4), tolerance)

	requirePhase(t, 1.4, a.CaptureAppSnapshot().PhaseAtTime(now, 4), 4)
}

func TestForceBeatAtTimeMovesGroupPhase(t *testing.T) {
	t.Parallel()

	a, b, step := joinedPair(t)
	step(700 * time.Millisecond)
	now := b.Now()

	snap := b.CaptureAppSnapshot()
	require.NoError(t, snap.ForceBeatAtTime(0, now, 4))
	require.NoError(t, b.CommitAppSnapshot(snap))

	require.InDelta(t, 0.0, b.CaptureAppSnapshot().BeatAtTime(now, 4), tolerance)
	requirePhase(t, 0, a.CaptureAppSnapshot().PhaseAtTime(now, 4), 4)
}

func TestTempoChangeReachesPeers(t *testing.T) {
	t.Parallel()

	a, b, step := joinedPair(t)
	step(time.Second)
	now := a.Now()

	snap := a.CaptureAppSnapshot()
	require.NoError(t, snap.SetTempo(96, now))
	require.NoError(t, a.CommitAppSnapshot(snap))

	got := b.CaptureAppSnapshot()
	require.Equal(t, 96.0, got.Tempo())
	requirePhase(t, a.CaptureAppSnapshot().PhaseAtTime(now.AddSeconds(5), 4), got.PhaseAtTime(now.AddSeconds(5), 4), 4)
}

func TestTransportSync(t *testing.T) {
	t.Parallel()

	a, b, _ := joinedPair(t)
	start := a.Now().AddSeconds(2)

	snap := a.CaptureAppSnapshot()
	require.NoError(t, snap.StartTransportAt(start))
	require.NoError(t, a.CommitAppSnapshot(snap))

	got := b.CaptureAppSnapshot()
	require.True(t, got.IsPlaying())
	require.Equal(t, start, got.TransportStateTime())

	b.EnableTransportSync(false)
	require.False(t, b.IsTransportSyncEnabled())
	snap = a.CaptureAppSnapshot()
	require.NoError(t, snap.StopTransportAt(a.Now()))
	require.NoError(t, a.CommitAppSnapshot(snap))
	require.True(t, b.CaptureAppSnapshot().IsPlaying(), "b ignores remote transport")

	// b's local stop is not shared either
	snap = b.CaptureAppSnapshot()
	require.NoError(t, snap.StopTransportAt(b.Now()))
	require.NoError(t, b.CommitAppSnapshot(snap))
	snap = a.CaptureAppSnapshot()
	require.NoError(t, snap.StartTransportAt(a.Now()))
	require.NoError(t, a.CommitAppSnapshot(snap))
	require.False(t, b.CaptureAppSnapshot().IsPlaying())
}

func TestJoiningWithoutTransportSyncKeepsTransportLocal(t *testing.T) {
	t.Parallel()

	_, c := newTestClock()
	hub := peer.NewHub()

	a, err := New(Options{Tempo: 120, Clock: c, Engine: hub, NodeID: "a"})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	require.False(t, a.IsTransportSyncEnabled())

	snap := a.CaptureAppSnapshot()
	require.NoError(t, snap.StartTransportAt(c.Now().AddSeconds(1)))
	require.NoError(t, a.CommitAppSnapshot(snap))
	require.NoError(t, a.Enable())
	require.True(t, a.CaptureAppSnapshot().IsPlaying())

	b := newTestSession(t, c, hub, "b")
	require.NoError(t, b.Enable())
	require.Equal(t, 1, b.PeerCount())
	require.False(t, b.CaptureAppSnapshot().IsPlaying())
}

func TestLeavingPeerUpdatesCount(t *testing.T) {
	t.Parallel()

	a, b, _ := joinedPair(t)
	require.NoError(t, b.Disable())
	require.Equal(t, 0, a.PeerCount())
	require.Equal(t, 0, b.PeerCount())
}

func TestCallbacks(t *testing.T) {
	t.Parallel()

	fake, c := newTestClock()
	hub := peer.NewHub()
	a := newTestSession(t, c, hub, "a")

	var peers atomic.Int64
	var mu sync.Mutex
	var tempos []float64
	var playing atomic.Bool
	a.OnPeerCountChanged(func(n int) { peers.Store(int64(n)) })
	a.OnTempoChanged(func(bpm float64) {
		mu.Lock()
		defer mu.Unlock()
		tempos = append(tempos, bpm)
	})
	a.OnTransportChanged(func(p bool) { playing.Store(p) })
	require.NoError(t, a.Enable())

	b := newTestSession(t, c, hub, "b")
	require.NoError(t, b.Enable())
	require.Eventually(t, func() bool { return peers.Load() == 1 }, time.Second, time.Millisecond)

	fake.Step(time.Second)
	snap := b.CaptureAppSnapshot()
	require.NoError(t, snap.SetTempo(100, b.Now()))
	require.NoError(t, snap.StartTransportAt(b.Now()))
	require.NoError(t, b.CommitAppSnapshot(snap))

	require.Eventually(t, func() bool { return playing.Load() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(tempos) > 0 && tempos[len(tempos)-1] == 100
	}, time.Second, time.Millisecond)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return peers.Load() == 0 }, time.Second, time.Millisecond)
}

func TestCallbackMayUseAppPath(t *testing.T) {
	t.Parallel()

	_, c := newTestClock()
	s := newTestSession(t, c, nil, "solo")

	seen := make(chan float64, 1)
	s.OnTempoChanged(func(float64) {
		seen <- s.CaptureAppSnapshot().Tempo()
	})

	snap := s.CaptureAppSnapshot()
	require.NoError(t, snap.SetTempo(150, c.Now()))
	require.NoError(t, s.CommitAppSnapshot(snap))

	select {
	case bpm := <-seen:
		require.Equal(t, 150.0, bpm)
	case <-time.After(time.Second):
		t.Fatal("tempo callback not called")
	}
}

func TestConcurrentAppCommits(t *testing.T) {
	t.Parallel()

	_, c := newTestClock()
	s := newTestSession(t, c, nil, "solo")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(bpm float64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snap := s.CaptureAppSnapshot()
				assert.NoError(t, snap.SetTempo(bpm, c.Now()))
				assert.NoError(t, s.CommitAppSnapshot(snap))
			}
		}(float64(100 + i))
	}
	wg.Wait()

	bpm := s.CaptureAppSnapshot().Tempo()
	require.GreaterOrEqual(t, bpm, 100.0)
	require.Less(t, bpm, 108.0)
}
