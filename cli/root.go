package cli

import (
	"os"

	"github.com/gruntwork-io/go-commons/errors"
	"github.com/spf13/cobra"

	"github.com/robmorgan/halolink/config"
	"github.com/robmorgan/halolink/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
	Listen     string
	Peers      []string
}

// NewRootCommand creates the root command for the halolink CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "halolink",
		Short:         "Share a musical timeline with peers",
		Long:          "halolink keeps tempo, beat phase and transport in sync between processes over OSC.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides the config")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "append logs to this file")
	cmd.PersistentFlags().StringVar(&opts.Listen, "listen", "", "UDP address to receive peer messages on")
	cmd.PersistentFlags().StringArrayVar(&opts.Peers, "peer", nil, "peer address to announce to, repeatable")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewRampCommand(opts))
	cmd.AddCommand(NewNowCommand(opts))

	return cmd
}

// loadConfig applies the global flags over the config file and environment.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.HaloConfig, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	if flags.Changed("listen") {
		cfg.OSC.Listen = opts.Listen
	}
	if flags.Changed("peer") {
		cfg.OSC.Peers = opts.Peers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.WithStackTrace(err)
		}
		logger.SetOutput(f)
	}
	return cfg, nil
}
