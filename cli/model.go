package cli

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/robmorgan/halolink/audio"
	"github.com/robmorgan/halolink/config"
	"github.com/robmorgan/halolink/engine/scale"
	"github.com/robmorgan/halolink/rhythm"
	"github.com/robmorgan/halolink/session"
)

const refreshRate = 25 * time.Millisecond

// status is what the view shows, read from the session on every tick.
type status struct {
	tempo   float64
	beat    float64
	phase   float64
	playing bool
	peers   int
	enabled bool
	sync    bool
	clicks  uint64
}

type model struct {
	session   *session.Session
	metronome *audio.Metronome
	grid      rhythm.Grid
	quantum   float64
	toUnit    func(float64) float64

	spinner  spinner.Model
	progress progress.Model
	status   status
	err      error
	quitting bool
}

func newModel(s *session.Session, m *audio.Metronome, cfg *config.HaloConfig) model {
	sp := spinner.New()
	sp.Style = spinnerStyle

	md := model{
		session:   s,
		metronome: m,
		grid:      cfg.Grid(),
		quantum:   cfg.Quantum,
		toUnit:    scale.ToUnitClamp(0, cfg.Quantum),
		spinner:   sp,
		progress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
	}
	md.refresh()
	return md
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spinner.Tick)
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *model) refresh() {
	snap := m.session.CaptureAppSnapshot()
	now := m.session.Now()
	m.status = status{
		tempo:   snap.Tempo(),
		beat:    snap.BeatAtTime(now, m.quantum),
		phase:   snap.PhaseAtTime(now, m.quantum),
		playing: snap.IsPlaying() && !snap.TransportStateTime().After(now),
		peers:   m.session.PeerCount(),
		enabled: m.session.IsEnabled(),
		sync:    m.session.IsTransportSyncEnabled(),
		clicks:  m.metronome.Clicks(),
	}
}
