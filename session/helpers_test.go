package session

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/peer"
)

const tolerance = 1e-5

func newTestClock() (*testingclock.FakeClock, *clock.Clock) {
	fake := testingclock.NewFakeClock(time.Unix(1_000, 0))
	return fake, clock.New(fake)
}

func newTestSession(t *testing.T, c *clock.Clock, engine peer.Engine, id peer.NodeID) *Session {
	t.Helper()

	s, err := New(Options{Tempo: 120, Clock: c, Engine: engine, NodeID: id, TransportSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

// requirePhase compares phases modulo quantum, so 3.999999 and 0 are equal.
func requirePhase(t *testing.T, want, got, quantum float64) {
	t.Helper()

	d := math.Mod(math.Abs(want-got), quantum)
	require.True(t, d < tolerance || quantum-d < tolerance, "phase want %v got %v", want, got)
}
