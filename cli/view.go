package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/robmorgan/halolink/rhythm"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Margin(1, 0)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	appStyle     = lipgloss.NewStyle().Margin(1, 2, 0, 2)

	accentColor, _ = colorful.Hex("#F25D94")
	beatColor, _   = colorful.Hex("#43BF6D")
	idleColor, _   = colorful.Hex("#3C3C3C")
)

// beatCell fades from bright to idle over the beat. The first beat of the quantum uses
// the accent colour.
func beatCell(index int, phase float64) string {
	current := int(math.Floor(phase))
	c := idleColor
	if index == current {
		bright := beatColor
		if index == 0 {
			bright = accentColor
		}
		c = bright.BlendLuv(idleColor, phase-float64(current)).Clamped()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render("●")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (m model) View() string {
	st := m.status

	var s strings.Builder
	s.WriteString(titleStyle.Render("halolink"))
	s.WriteString(" " + m.spinner.View() + "\n\n")

	fmt.Fprintf(&s, "%s %.2f   %s %d   %s %s   %s %s\n\n",
		labelStyle.Render("BPM"), st.tempo,
		labelStyle.Render("Peers"), st.peers,
		labelStyle.Render("Link"), onOff(st.enabled),
		labelStyle.Render("Sync"), onOff(st.sync))

	transport := "stopped"
	if st.playing {
		transport = "playing"
	}
	fmt.Fprintf(&s, "%s %s   %s %s   %s %d\n\n",
		labelStyle.Render("Transport"), transport,
		labelStyle.Render("Position"), m.grid.Marker(st.beat),
		labelStyle.Render("Clicks"), st.clicks)

	tempo := rhythm.Tempo(st.tempo)
	fmt.Fprintf(&s, "%s %.0fms   %s %.0fms   %s %.0fms\n\n",
		labelStyle.Render("Beat"), m.grid.BeatInterval(tempo),
		labelStyle.Render("Bar"), m.grid.BarInterval(tempo),
		labelStyle.Render("Phrase"), m.grid.PhraseInterval(tempo))

	cells := int(math.Ceil(m.quantum))
	for i := 0; i < cells; i++ {
		s.WriteString(beatCell(i, st.phase) + " ")
	}
	s.WriteString("\n" + m.progress.ViewAs(m.toUnit(st.phase)) + "\n")

	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	}

	s.WriteString(helpStyle.Render("([,]) BPM -/+   (space) start/stop   (a) link   (s) sync\n\nPress q to exit\n"))

	if m.quitting {
		s.WriteString("\n")
	}
	return appStyle.Render(s.String())
}
