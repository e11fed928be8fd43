// Package audio renders the session beat as a click track.
package audio

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/gruntwork-io/go-commons/errors"

	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/engine/scale"
	"github.com/robmorgan/halolink/session"
)

const (
	clickFreq   = 880.0
	accentFreq  = 1760.0
	clickLength = 30 * time.Millisecond
	clickGain   = 0.5
)

// Options configure a Metronome.
type Options struct {
	SampleRate beep.SampleRate
	Quantum    float64

	// Latency is how far ahead of the clock the buffer being rendered will be heard.
	Latency time.Duration
}

// Metronome is a beep.Streamer that clicks on every beat while the transport plays,
// accenting the start of each quantum. Stream runs on the audio path: it reads the session
// through a bound session.Audio and neither blocks nor allocates.
type Metronome struct {
	audio    *session.Audio
	clock    *clock.Clock
	rate     beep.SampleRate
	quantum  float64
	latency  clock.Duration
	envelope func(float64) float64

	// scratch space, so Stream does not allocate
	snap session.Snapshot

	lastBeat  float64
	started   bool
	clickLen  int
	clickLeft int
	freq      float64
	osc       float64

	pending  atomic.Pointer[change]
	rejected atomic.Uint64
	clicks   atomic.Uint64
	accents  atomic.Uint64
}

// Change edits the audio snapshot before a buffer is rendered. at is when the first sample
// of that buffer will be heard.
type Change func(snap *session.Snapshot, at clock.Instant) error

type change struct {
	apply Change
	next  *change
}

// NewMetronome renders the session behind a.
func NewMetronome(a *session.Audio, c *clock.Clock, opts Options) *Metronome {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if !(opts.Quantum > 0) {
		opts.Quantum = 4
	}
	clickLen := opts.SampleRate.N(clickLength)
	return &Metronome{
		audio:    a,
		clock:    c,
		rate:     opts.SampleRate,
		quantum:  opts.Quantum,
		latency:  clock.FromStd(opts.Latency),
		envelope: scale.Clamp(0, float64(clickLen), 1, 0),
		clickLen: clickLen,
	}
}

// Stream implements beep.Streamer.
func (m *Metronome) Stream(samples [][2]float64) (int, bool) {
	m.snap = m.audio.CaptureSnapshot()
	snap := &m.snap
	if !snap.Captured() {
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}

	start := m.clock.Now().Add(m.latency)
	if m.applyPending(snap, start) {
		if err := m.audio.CommitSnapshot(*snap); err != nil {
			m.rejected.Add(1)
		}
	}
	playing := snap.IsPlaying()
	from := snap.TransportStateTime()

	for i := range samples {
		t := start.AddMicros(int64(i) * 1_000_000 / int64(m.rate))
		beat := snap.BeatAtTime(t, m.quantum)
		if playing && !t.Before(from) && m.crossed(beat) {
			m.trigger(snap.PhaseAtTime(t, m.quantum) < 1)
		}
		m.lastBeat, m.started = beat, true

		v := m.next()
		samples[i][0], samples[i][1] = v, v
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (m *Metronome) Err() error { return nil }

// Clicks returns the number of clicks rendered so far.
func (m *Metronome) Clicks() uint64 { return m.clicks.Load() }

// Accents returns how many of those clicks started a quantum.
func (m *Metronome) Accents() uint64 { return m.accents.Load() }

// Submit queues c for the next buffer. Changes apply in submission order. It is safe to
// call from any goroutine; this is how the app side edits a session whose audio path is
// bound.
func (m *Metronome) Submit(c Change) {
	n := &change{apply: c}
	for {
		n.next = m.pending.Load()
		if m.pending.CompareAndSwap(n.next, n) {
			return
		}
	}
}

// Rejected returns how many submitted changes failed.
func (m *Metronome) Rejected() uint64 { return m.rejected.Load() }

func (m *Metronome) applyPending(snap *session.Snapshot, at clock.Instant) bool {
	head := m.pending.Swap(nil)
	if head == nil {
		return false
	}

	// the stack holds the newest change first
	var ordered *change
	for head != nil {
		next := head.next
		head.next = ordered
		ordered, head = head, next
	}
	for c := ordered; c != nil; c = c.next {
		if err := c.apply(snap, at); err != nil {
			m.rejected.Add(1)
		}
	}
	return true
}

func (m *Metronome) crossed(beat float64) bool {
	if !m.started {
		return beat == math.Floor(beat)
	}
	return math.Floor(beat) > math.Floor(m.lastBeat)
}

func (m *Metronome) trigger(accent bool) {
	m.clickLeft = m.clickLen
	m.osc = 0
	m.freq = clickFreq
	if accent {
		m.freq = accentFreq
		m.accents.Add(1)
	}
	m.clicks.Add(1)
}

func (m *Metronome) next() float64 {
	if m.clickLeft == 0 {
		return 0
	}
	pos := float64(m.clickLen - m.clickLeft)
	m.clickLeft--
	v := math.Sin(m.osc) * m.envelope(pos) * clickGain
	m.osc += 2 * math.Pi * m.freq / float64(m.rate)
	return v
}

// Play starts the metronome on the default sound card with buffers of the given length.
func Play(m *Metronome, buffer time.Duration) error {
	if err := speaker.Init(m.rate, m.rate.N(buffer)); err != nil {
		return errors.WithStackTrace(err)
	}
	speaker.Play(m)
	return nil
}

// Close stops the sound card.
func Close() {
	speaker.Close()
}
