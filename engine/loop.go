package engine

import (
	"runtime"
	"sync"
	"time"

	k8sclock "k8s.io/utils/clock"
)

// Loop calls onUpdate at a fixed tick rate with the seconds elapsed since the previous
// tick. It drives the audio path when there is no sound card to pull it.
type Loop struct {
	clock    k8sclock.WithTicker
	mu       sync.Mutex
	onUpdate func(float64)
	tickRate int
	quit     chan struct{}
	done     chan struct{}
}

// New creates a stopped loop ticking tickRate times per second.
func New(clock k8sclock.WithTicker, tickRate int, onUpdate func(delta float64)) *Loop {
	if clock == nil {
		clock = k8sclock.RealClock{}
	}
	if tickRate <= 0 {
		tickRate = 1
	}
	return &Loop{
		clock:    clock,
		onUpdate: onUpdate,
		tickRate: tickRate,
	}
}

func (l *Loop) run(quit, done chan struct{}, interval time.Duration, onUpdate func(float64)) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()
	last := l.clock.Now()

	for {
		select {
		case <-ticker.C():
			now := l.clock.Now()
			// DT in seconds
			delta := now.Sub(last).Seconds()
			last = now
			onUpdate(delta)
		case <-quit:
			return
		}
	}
}

// TickRate returns the number of ticks per second.
func (l *Loop) TickRate() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tickRate
}

// Interval returns the time between ticks.
func (l *Loop) Interval() time.Duration {
	return time.Second / time.Duration(l.TickRate())
}

// Set tickRate and restart the loop if it is running
func (l *Loop) SetTickRate(tickRate int) {
	if tickRate <= 0 {
		return
	}
	l.mu.Lock()
	l.tickRate = tickRate
	running := l.quit != nil
	l.mu.Unlock()

	if running {
		l.Restart()
	}
}

// Set onUpdate func. It takes effect on the next Start.
func (l *Loop) SetOnUpdate(onUpdate func(float64)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onUpdate = onUpdate
}

// Start the loop. Starting a running loop does nothing.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.quit != nil || l.onUpdate == nil {
		return
	}
	l.quit, l.done = make(chan struct{}), make(chan struct{})
	go l.run(l.quit, l.done, time.Second/time.Duration(l.tickRate), l.onUpdate)
}

// Stop the loop and wait for the current tick to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	quit, done := l.quit, l.done
	l.quit, l.done = nil, nil
	l.mu.Unlock()

	if quit == nil {
		return
	}
	close(quit)
	<-done
}

// Restart the loop
func (l *Loop) Restart() {
	l.Stop()
	l.Start()
}

// Running reports whether the loop is started.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quit != nil
}
