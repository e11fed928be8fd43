package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/config"
	"github.com/robmorgan/halolink/engine"
	"github.com/robmorgan/halolink/logger"
	"github.com/robmorgan/halolink/rhythm"
	"github.com/robmorgan/halolink/session"
)

const rampTickRate = 50

// RampOptions holds the flags of the ramp command.
type RampOptions struct {
	*RootOptions
	To    float64
	Beats float64
	Curve string
	Wait  time.Duration
}

// NewRampCommand creates the ramp command: glide the session tempo to a target.
func NewRampCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RampOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ramp",
		Short: "Glide the session tempo to a new value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			curve, err := rhythm.CurveByName(opts.Curve)
			if err != nil {
				return err
			}
			if !(opts.To > 0) {
				return session.ErrInvalidTempo
			}
			return ramp(cmd, cfg, opts, curve)
		},
	}

	cmd.Flags().Float64Var(&opts.To, "to", 0, "target tempo in BPM")
	cmd.Flags().Float64Var(&opts.Beats, "beats", 16, "length of the ramp in beats")
	cmd.Flags().StringVar(&opts.Curve, "curve", "linear", fmt.Sprintf("easing curve, one of %v", rhythm.CurveNames()))
	cmd.Flags().DurationVar(&opts.Wait, "wait", 2*time.Second, "time to wait for peers before ramping")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func ramp(cmd *cobra.Command, cfg *config.HaloConfig, opts *RampOptions, curve rhythm.Curve) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.WithComponent("ramp")

	n, err := startNode(ctx, cfg, clock.Process())
	if err != nil {
		return err
	}
	defer n.Close()

	// let the bridge adopt the group timeline first
	select {
	case <-time.After(opts.Wait):
	case <-ctx.Done():
		return nil
	}

	r := newRamper(n.session, opts.To, opts.Beats, curve, cfg.Quantum)
	log.WithField("peers", n.session.PeerCount()).
		WithField("from", r.ramp.From.BPM()).
		WithField("to", opts.To).
		Info("Starting tempo ramp")

	done := make(chan error, 1)
	loop := engine.New(nil, rampTickRate, func(float64) {
		finished, err := r.step()
		if err != nil || finished {
			select {
			case done <- err:
			default:
			}
		}
	})
	loop.Start()
	defer loop.Stop()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", n.session.CaptureAppSnapshot().Tempo())
		return nil
	case <-ctx.Done():
		return nil
	}
}

// ramper applies a tempo ramp to a session on the app path, one step per tick.
type ramper struct {
	session   *session.Session
	ramp      rhythm.Ramp
	quantum   float64
	startBeat float64
}

func newRamper(s *session.Session, to, beats float64, curve rhythm.Curve, quantum float64) *ramper {
	snap := s.CaptureAppSnapshot()
	return &ramper{
		session: s,
		ramp: rhythm.Ramp{
			From:  rhythm.Tempo(snap.Tempo()),
			To:    rhythm.Tempo(to).Clamp(),
			Beats: beats,
			Curve: curve,
		},
		quantum:   quantum,
		startBeat: snap.BeatAtTime(s.Now(), quantum),
	}
}

// step sets the tempo for the beats elapsed since the ramp started and reports whether
// the ramp is complete.
func (r *ramper) step() (bool, error) {
	snap := r.session.CaptureAppSnapshot()
	now := r.session.Now()
	elapsed := snap.BeatAtTime(now, r.quantum) - r.startBeat
	if err := snap.SetTempo(r.ramp.TempoAt(elapsed).BPM(), now); err != nil {
		return false, err
	}
	if err := r.session.CommitAppSnapshot(snap); err != nil {
		return false, err
	}
	return r.ramp.Done(elapsed), nil
}
