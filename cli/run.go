package cli

import (
	"io"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/faiface/beep"
	"github.com/spf13/cobra"

	"github.com/robmorgan/halolink/audio"
	"github.com/robmorgan/halolink/clock"
	"github.com/robmorgan/halolink/config"
	"github.com/robmorgan/halolink/engine"
	"github.com/robmorgan/halolink/logger"
)

// RunOptions holds the flags of the run command.
type RunOptions struct {
	*RootOptions
	BPM     float64
	Quantum float64
	Silent  bool
}

// NewRunCommand creates the run command: join peers, click along and show the timeline.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join the session and play a click track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("bpm") {
				cfg.Tempo = opts.BPM
			}
			if flags.Changed("quantum") {
				cfg.Quantum = opts.Quantum
			}
			if flags.Changed("silent") {
				cfg.Audio.Silent = opts.Silent
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if opts.LogFile == "" {
				// the TUI owns the terminal
				logger.SetOutput(io.Discard)
			}
			return run(cmd, cfg)
		},
	}

	cmd.Flags().Float64Var(&opts.BPM, "bpm", 120, "initial tempo when founding a session")
	cmd.Flags().Float64Var(&opts.Quantum, "quantum", 4, "beats per phase cycle")
	cmd.Flags().BoolVar(&opts.Silent, "silent", false, "render the click track without a sound card")

	return cmd
}

func run(cmd *cobra.Command, cfg *config.HaloConfig) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := clock.Process()
	n, err := startNode(ctx, cfg, c)
	if err != nil {
		return err
	}
	defer n.Close()

	a, err := n.session.BindAudio()
	if err != nil {
		return err
	}
	defer a.Release()

	m := audio.NewMetronome(a, c, audio.Options{
		SampleRate: beep.SampleRate(cfg.Audio.SampleRate),
		Quantum:    cfg.Quantum,
		Latency:    cfg.BufferDuration(),
	})

	if cfg.Audio.Silent {
		buf := make([][2]float64, cfg.Audio.BufferFrames)
		loop := engine.New(nil, cfg.Audio.SampleRate/cfg.Audio.BufferFrames, func(float64) {
			m.Stream(buf)
		})
		loop.Start()
		defer loop.Stop()
	} else {
		if err := audio.Play(m, cfg.BufferDuration()); err != nil {
			return err
		}
		defer audio.Close()
	}

	p := tea.NewProgram(newModel(n.session, m, cfg))
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err = p.Run()
	return err
}
