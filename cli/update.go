package cli

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/robmorgan/halolink/audio"
	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/session"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "[":
			m.metronome.Submit(nudgeTempo(-1))
		case "]":
			m.metronome.Submit(nudgeTempo(1))
		case " ", "space":
			m.metronome.Submit(toggleTransport(m.quantum))
		case "a":
			if m.session.IsEnabled() {
				m.err = m.session.Disable()
			} else {
				m.err = m.session.Enable()
			}
		case "s":
			m.session.EnableTransportSync(!m.session.IsTransportSyncEnabled())
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		m.refresh()
		return m, nil
	case tickMsg:
		m.refresh()
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func nudgeTempo(delta float64) audio.Change {
	return func(snap *session.Snapshot, at clock.Instant) error {
		return snap.SetTempo(snap.Tempo()+delta, at)
	}
}

// toggleTransport stops a playing transport, or starts it with beat 0 on the next
// downbeat the peers agree on.
func toggleTransport(quantum float64) audio.Change {
	return func(snap *session.Snapshot, at clock.Instant) error {
		if snap.IsPlaying() {
			return snap.StopTransportAt(at)
		}
		return snap.StartTransportAndRequestBeatAt(0, at, quantum)
	}
}
