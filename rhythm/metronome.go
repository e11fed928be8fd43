package rhythm

import (
	"fmt"
	"math"
)

// Grid groups beats into bars and bars into phrases.
// Originally based on https://github.com/Deep-Symmetry/electro/blob/main/src/main/java/org/deepsymmetry/electro/Metronome.java#L449
type Grid struct {
	BeatsPerBar   int
	BarsPerPhrase int
}

// NewGrid creates a Grid with default values
func NewGrid() Grid {
	return Grid{
		BeatsPerBar:   4,
		BarsPerPhrase: 8,
	}
}

// BeatInterval returns the number of milliseconds a beat lasts at tempo.
func (g Grid) BeatInterval(tempo Tempo) float64 {
	return beatsToMilliseconds(1, tempo)
}

// BarInterval returns the number of milliseconds a bar lasts at tempo.
func (g Grid) BarInterval(tempo Tempo) float64 {
	return beatsToMilliseconds(g.beatsPerBar(), tempo)
}

// PhraseInterval returns the number of milliseconds a phrase lasts at tempo.
func (g Grid) PhraseInterval(tempo Tempo) float64 {
	return beatsToMilliseconds(g.beatsPerBar()*g.barsPerPhrase(), tempo)
}

// Marker locates beat on the grid.
func (g Grid) Marker(beat float64) Marker {
	bpb := float64(g.beatsPerBar())
	bpp := bpb * float64(g.barsPerPhrase())

	return Marker{
		Beat:          markerNumber(beat, 1),
		Bar:           markerNumber(beat, bpb),
		Phrase:        markerNumber(beat, bpp),
		BeatPhase:     markerPhase(beat, 1),
		BarPhase:      markerPhase(beat, bpb),
		PhrasePhase:   markerPhase(beat, bpp),
		beatsPerBar:   g.beatsPerBar(),
		barsPerPhrase: g.barsPerPhrase(),
	}
}

func (g Grid) beatsPerBar() int {
	if g.BeatsPerBar < 1 {
		return 1
	}
	return g.BeatsPerBar
}

func (g Grid) barsPerPhrase() int {
	if g.BarsPerPhrase < 1 {
		return 1
	}
	return g.BarsPerPhrase
}

// beatsToMilliseconds calculates milliseconds for given beats and tempo
func beatsToMilliseconds(beats int, tempo Tempo) float64 {
	return (60000.0 / float64(tempo)) * float64(beats)
}

// markerNumber calculates the 1-based marker number for markers interval beats apart
func markerNumber(beat, interval float64) int64 {
	return int64(math.Floor(beat/interval)) + 1
}

// markerPhase calculates the phase of a marker
func markerPhase(beat, interval float64) float64 {
	ratio := beat / interval
	return ratio - math.Floor(ratio)
}

// Marker describes a beat position in beat/bar/phrase terms.
type Marker struct {
	// Beat, Bar and Phrase are 1-based counts from beat zero.
	Beat   int64
	Bar    int64
	Phrase int64

	// BeatPhase, BarPhase and PhrasePhase are the progress through the current beat, bar and
	// phrase in [0, 1).
	BeatPhase   float64
	BarPhase    float64
	PhrasePhase float64

	beatsPerBar   int
	barsPerPhrase int
}

// BeatWithinBar returns the 1-based beat number relative to the start of the bar.
func (m Marker) BeatWithinBar() int {
	return int(floorMod(m.Beat-1, int64(m.beatsPerBar))) + 1
}

// IsDownBeat checks whether the beat is the first beat in its bar.
func (m Marker) IsDownBeat() bool {
	return m.BeatWithinBar() == 1
}

// BeatWithinPhrase returns the 1-based beat number relative to the start of the phrase.
func (m Marker) BeatWithinPhrase() int {
	return int(floorMod(m.Beat-1, int64(m.beatsPerBar*m.barsPerPhrase))) + 1
}

// BarWithinPhrase returns the 1-based bar number relative to the start of the phrase.
func (m Marker) BarWithinPhrase() int {
	return int(floorMod(m.Bar-1, int64(m.barsPerPhrase))) + 1
}

// IsPhraseStart checks whether the beat is the first beat in its phrase.
func (m Marker) IsPhraseStart() bool {
	return m.BeatWithinPhrase() == 1
}

// String returns the marker as "phrase.bar.beat".
func (m Marker) String() string {
	return fmt.Sprintf("%d.%d.%d", m.Phrase, m.BarWithinPhrase(), m.BeatWithinBar())
}
