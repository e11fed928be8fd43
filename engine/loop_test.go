package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type recorder struct {
	mu     sync.Mutex
	deltas []float64
}

func (r *recorder) update(delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, delta)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deltas)
}

func TestLoopTicks(t *testing.T) {
	t.Parallel()

	fake := testingclock.NewFakeClock(time.Unix(0, 0))
	rec := &recorder{}
	loop := New(fake, 50, rec.update)
	require.Equal(t, 20*time.Millisecond, loop.Interval())

	loop.Start()
	defer loop.Stop()
	require.True(t, loop.Running())

	for i := 1; i <= 3; i++ {
		require.Eventually(t, fake.HasWaiters, time.Second, time.Millisecond)
		fake.Step(20 * time.Millisecond)
		require.Eventually(t, func() bool { return rec.count() == i }, time.Second, time.Millisecond)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, d := range rec.deltas {
		require.InDelta(t, 0.02, d, 1e-9)
	}
}

func TestLoopStop(t *testing.T) {
	t.Parallel()

	fake := testingclock.NewFakeClock(time.Unix(0, 0))
	rec := &recorder{}
	loop := New(fake, 10, rec.update)

	loop.Stop()
	loop.Start()
	loop.Start()
	loop.Stop()
	require.False(t, loop.Running())

	fake.Step(time.Second)
	require.Equal(t, 0, rec.count())
}

func TestLoopSetTickRateRestarts(t *testing.T) {
	t.Parallel()

	fake := testingclock.NewFakeClock(time.Unix(0, 0))
	rec := &recorder{}
	loop := New(fake, 10, rec.update)
	loop.Start()
	defer loop.Stop()

	loop.SetTickRate(100)
	require.Equal(t, 100, loop.TickRate())
	require.True(t, loop.Running())

	require.Eventually(t, func() bool {
		fake.Step(10 * time.Millisecond)
		return rec.count() > 0
	}, time.Second, time.Millisecond)
}
