package config

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gruntwork-io/go-commons/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/robmorgan/halolink/logger"
	"github.com/robmorgan/halolink/rhythm"
)

// EnvPrefix prefixes every environment override, e.g. HALO_TEMPO.
const EnvPrefix = "HALO_"

// HaloConfig represents options that configure the global behavior of the program
type HaloConfig struct {
	Settings `yaml:",inline"`

	// Project logger
	Logger *logrus.Logger `yaml:"-"`
}

// Settings are the values that can come from a file or the environment.
type Settings struct {
	Tempo         float64 `yaml:"tempo" env:"TEMPO"`
	Quantum       float64 `yaml:"quantum" env:"QUANTUM"`
	BeatsPerBar   int     `yaml:"beats_per_bar" env:"BEATS_PER_BAR"`
	BarsPerPhrase int     `yaml:"bars_per_phrase" env:"BARS_PER_PHRASE"`

	// Enabled joins the peer group on start.
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	TransportSync bool   `yaml:"transport_sync" env:"TRANSPORT_SYNC"`
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL"`

	OSC   OSCSettings   `yaml:"osc" envPrefix:"OSC_"`
	Audio AudioSettings `yaml:"audio" envPrefix:"AUDIO_"`
}

type OSCSettings struct {
	Listen    string        `yaml:"listen" env:"LISTEN"`
	Advertise string        `yaml:"advertise" env:"ADVERTISE"`
	Peers     []string      `yaml:"peers" env:"PEERS" envSeparator:","`
	Heartbeat time.Duration `yaml:"heartbeat" env:"HEARTBEAT"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type AudioSettings struct {
	SampleRate   int  `yaml:"sample_rate" env:"SAMPLE_RATE"`
	BufferFrames int  `yaml:"buffer_frames" env:"BUFFER_FRAMES"`
	Silent       bool `yaml:"silent" env:"SILENT"`
}

// Create a new HaloConfig object with reasonable defaults for real usage
func NewHaloConfig() *HaloConfig {
	grid := rhythm.NewGrid()

	return &HaloConfig{
		Settings: Settings{
			Tempo:         120,
			Quantum:       4,
			BeatsPerBar:   grid.BeatsPerBar,
			BarsPerPhrase: grid.BarsPerPhrase,
			Enabled:       true,
			TransportSync: true,
			LogLevel:      "info",
			OSC: OSCSettings{
				Listen:    "127.0.0.1:7400",
				Heartbeat: time.Second,
				Timeout:   5 * time.Second,
			},
			Audio: AudioSettings{
				SampleRate:   44100,
				BufferFrames: 256,
			},
		},
		Logger: logger.GetProjectLogger(),
	}
}

// Load reads the YAML file at path over the defaults, applies HALO_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*HaloConfig, error) {
	cfg := NewHaloConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WithStackTrace(err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg.Settings); err != nil && err != io.EOF {
			return nil, errors.WithStackTrace(fmt.Errorf("config %s: %w", path, err))
		}
	}

	if err := env.ParseWithOptions(&cfg.Settings, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.WithStackTrace(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *HaloConfig) Validate() error {
	switch {
	case c.Tempo < float64(rhythm.MinTempo) || c.Tempo > float64(rhythm.MaxTempo):
		return fmt.Errorf("tempo %v outside [%v, %v]", c.Tempo, rhythm.MinTempo, rhythm.MaxTempo)
	case !(c.Quantum > 0):
		return fmt.Errorf("quantum must be positive, got %v", c.Quantum)
	case c.BeatsPerBar < 1:
		return fmt.Errorf("beats_per_bar must be at least 1, got %d", c.BeatsPerBar)
	case c.BarsPerPhrase < 1:
		return fmt.Errorf("bars_per_phrase must be at least 1, got %d", c.BarsPerPhrase)
	case c.Audio.SampleRate <= 0:
		return fmt.Errorf("audio sample_rate must be positive, got %d", c.Audio.SampleRate)
	case c.Audio.BufferFrames <= 0:
		return fmt.Errorf("audio buffer_frames must be positive, got %d", c.Audio.BufferFrames)
	case c.OSC.Heartbeat <= 0:
		return fmt.Errorf("osc heartbeat must be positive, got %s", c.OSC.Heartbeat)
	case c.OSC.Timeout <= c.OSC.Heartbeat:
		return fmt.Errorf("osc timeout %s must exceed the heartbeat %s", c.OSC.Timeout, c.OSC.Heartbeat)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(c.OSC.Listen); err != nil {
		return fmt.Errorf("osc listen: %w", err)
	}
	for _, p := range c.OSC.Peers {
		if _, _, err := net.SplitHostPort(p); err != nil {
			return fmt.Errorf("osc peer: %w", err)
		}
	}
	return nil
}

// Grid returns the bar and phrase layout.
func (c *HaloConfig) Grid() rhythm.Grid {
	return rhythm.Grid{BeatsPerBar: c.BeatsPerBar, BarsPerPhrase: c.BarsPerPhrase}
}

// BufferDuration is the length of one audio buffer.
func (c *HaloConfig) BufferDuration() time.Duration {
	return time.Duration(c.Audio.BufferFrames) * time.Second / time.Duration(c.Audio.SampleRate)
}
