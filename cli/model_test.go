package cli

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/robmorgan/halolink/audio"
	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/config"
	"github.com/robmorgan/halolink/session"
)

type modelRig struct {
	fake    *testingclock.FakeClock
	session *session.Session
	m       *audio.Metronome
	buf     [][2]float64
	model   model
}

func newModelRig(t *testing.T) *modelRig {
	t.Helper()

	fake := testingclock.NewFakeClock(time.Unix(500, 0))
	c := clock.New(fake)

	s, err := session.New(session.Options{Tempo: 120, Clock: c})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	a, err := s.BindAudio()
	require.NoError(t, err)
	t.Cleanup(a.Release)

	m := audio.NewMetronome(a, c, audio.Options{SampleRate: 1000, Quantum: 4})
	return &modelRig{
		fake:    fake,
		session: s,
		m:       m,
		buf:     make([][2]float64, 100),
		model:   newModel(s, m, config.NewHaloConfig()),
	}
}

func (r *modelRig) press(key string) tea.Cmd {
	next, cmd := r.model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	r.model = next.(model)
	return cmd
}

// render streams one buffer, which applies submitted changes, then refreshes the model.
func (r *modelRig) render() {
	r.m.Stream(r.buf)
	r.fake.Step(100 * time.Millisecond)
	next, _ := r.model.Update(tickMsg(time.Now()))
	r.model = next.(model)
}

func TestModelNudgesTempo(t *testing.T) {
	t.Parallel()

	r := newModelRig(t)
	r.press("]")
	r.press("]")
	r.press("[")
	r.render()

	assert.InDelta(t, 121, r.model.status.tempo, 1e-9)
	assert.Zero(t, r.m.Rejected())
}

func TestModelTogglesTransport(t *testing.T) {
	t.Parallel()

	r := newModelRig(t)
	r.press(" ")
	r.render()
	assert.True(t, r.session.CaptureAppSnapshot().IsPlaying())

	r.press(" ")
	r.render()
	assert.False(t, r.session.CaptureAppSnapshot().IsPlaying())
	assert.False(t, r.model.status.playing)
}

func TestModelTogglesLinkAndSync(t *testing.T) {
	t.Parallel()

	r := newModelRig(t)
	require.False(t, r.model.status.enabled)

	r.press("a")
	assert.True(t, r.session.IsEnabled())
	assert.True(t, r.model.status.enabled)

	r.press("a")
	assert.False(t, r.session.IsEnabled())

	sync := r.session.IsTransportSyncEnabled()
	r.press("s")
	assert.Equal(t, !sync, r.session.IsTransportSyncEnabled())
	assert.Equal(t, !sync, r.model.status.sync)
}

func TestModelQuits(t *testing.T) {
	t.Parallel()

	r := newModelRig(t)
	cmd := r.press("q")
	require.NotNil(t, cmd)
	assert.True(t, r.model.quitting)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModelView(t *testing.T) {
	t.Parallel()

	r := newModelRig(t)
	view := r.model.View()
	assert.Contains(t, view, "BPM")
	assert.Contains(t, view, "120.00")
	assert.Contains(t, view, "stopped")
	assert.Contains(t, view, "500ms")
	assert.Contains(t, view, "2000ms")
	assert.Contains(t, view, "16000ms")
}
