package rhythm

import (
	"fmt"
	"sort"

	"github.com/fogleman/ease"
)

// Curve shapes progress in [0, 1].
type Curve func(float64) float64

var curves = map[string]Curve{
	"linear":       ease.Linear,
	"in-quad":      ease.InQuad,
	"out-quad":     ease.OutQuad,
	"in-out-quad":  ease.InOutQuad,
	"in-cubic":     ease.InCubic,
	"out-cubic":    ease.OutCubic,
	"in-out-cubic": ease.InOutCubic,
	"in-quart":     ease.InQuart,
	"in-out-quart": ease.InOutQuart,
	"in-out-sine":  ease.InOutSine,
}

// CurveByName looks up an easing curve.
func CurveByName(name string) (Curve, error) {
	if c, ok := curves[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown curve %q, want one of %v", name, CurveNames())
}

// CurveNames lists the registered curves in order.
func CurveNames() []string {
	names := make([]string, 0, len(curves))
	for name := range curves {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ramp glides from one tempo to another over a number of beats.
type Ramp struct {
	From  Tempo
	To    Tempo
	Beats float64
	Curve Curve
}

// TempoAt returns the tempo elapsed beats into the ramp.
func (r Ramp) TempoAt(elapsed float64) Tempo {
	progress := 1.0
	if r.Beats > 0 {
		progress = elapsed / r.Beats
	}
	if progress <= 0 {
		return r.From
	}
	if progress >= 1 {
		return r.To
	}
	curve := r.Curve
	if curve == nil {
		curve = ease.Linear
	}
	return r.From + Tempo(curve(progress))*(r.To-r.From)
}

// Done reports whether elapsed beats cover the whole ramp.
func (r Ramp) Done(elapsed float64) bool {
	return elapsed >= r.Beats
}
