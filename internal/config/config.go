package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/capturr/internal/logger"
	"github.com/loykin/capturr/internal/schedule"
)

// Defaults applied when the config file leaves a knob unset.
const (
	DefaultCheckInterval = 5 * time.Second
	DefaultGrace         = 3 * time.Second
	DefaultKillWait      = 2 * time.Second
	DefaultAttempts      = 3
	DefaultBinary        = "ffmpeg"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	OutputDirectory string         `toml:"output_directory" mapstructure:"output_directory"`
	CheckInterval   time.Duration  `toml:"check_interval" mapstructure:"check_interval"`
	Grace           time.Duration  `toml:"grace" mapstructure:"grace"`
	KillWait        time.Duration  `toml:"kill_wait" mapstructure:"kill_wait"`
	Attempts        int            `toml:"attempts" mapstructure:"attempts"`
	FFmpeg          string         `toml:"ffmpeg" mapstructure:"ffmpeg"`
	WebhookURL      string         `toml:"webhook_url" mapstructure:"webhook_url"`
	HistoryDSN      string         `toml:"history_dsn" mapstructure:"history_dsn"`
	Log             *logger.Config `toml:"log" mapstructure:"log"`
	Server          *ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics         *MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Sources         []SourceConfig `toml:"sources" mapstructure:"sources"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
	// SampleProcess enables CPU/memory sampling of in-flight capture
	// processes.
	SampleProcess  bool          `toml:"sample_process" mapstructure:"sample_process"`
	SampleInterval time.Duration `toml:"sample_interval" mapstructure:"sample_interval"`
}

type SourceConfig struct {
	Name    string         `toml:"name" mapstructure:"name"`
	URL     string         `toml:"url" mapstructure:"url"`
	Windows []WindowConfig `toml:"windows" mapstructure:"windows"`
}

type WindowConfig struct {
	Day   string `toml:"day" mapstructure:"day"`
	Start string `toml:"start" mapstructure:"start"`
	End   string `toml:"end" mapstructure:"end"`
}

// Config is the resolved, validated configuration handed to the daemon.
type Config struct {
	OutputDirectory string
	CheckInterval   time.Duration
	Grace           time.Duration
	KillWait        time.Duration
	Attempts        int
	FFmpeg          string
	WebhookURL      string
	HistoryDSN      string
	Log             logger.Config
	Server          *ServerConfig
	Metrics         *MetricsConfig
	Sources         []schedule.Source
}

// Load reads a TOML config file and resolves it. Any malformed schedule
// entry is a load error; schedule problems are fatal at startup, never
// discovered at dispatch time.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return resolve(fc)
}

func resolve(fc FileConfig) (*Config, error) {
	if fc.OutputDirectory == "" {
		return nil, fmt.Errorf("output_directory is required")
	}
	cfg := &Config{
		OutputDirectory: fc.OutputDirectory,
		CheckInterval:   fc.CheckInterval,
		Grace:           fc.Grace,
		KillWait:        fc.KillWait,
		Attempts:        fc.Attempts,
		FFmpeg:          fc.FFmpeg,
		WebhookURL:      fc.WebhookURL,
		HistoryDSN:      fc.HistoryDSN,
		Server:          fc.Server,
		Metrics:         fc.Metrics,
	}
	if fc.Log != nil {
		cfg.Log = *fc.Log
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.KillWait <= 0 {
		cfg.KillWait = DefaultKillWait
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = DefaultBinary
	}

	sources := make([]schedule.Source, 0, len(fc.Sources))
	for _, sc := range fc.Sources {
		src, err := resolveSource(sc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if err := schedule.ValidateAll(sources); err != nil {
		return nil, err
	}
	cfg.Sources = sources
	return cfg, nil
}

func resolveSource(sc SourceConfig) (schedule.Source, error) {
	src := schedule.Source{Name: sc.Name, URL: sc.URL}
	for _, wc := range sc.Windows {
		day, err := schedule.ParseWeekday(wc.Day)
		if err != nil {
			return schedule.Source{}, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		start, err := schedule.ParseTimeOfDay(wc.Start)
		if err != nil {
			return schedule.Source{}, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		end, err := schedule.ParseTimeOfDay(wc.End)
		if err != nil {
			return schedule.Source{}, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		src.Windows = append(src.Windows, schedule.Window{Day: day, Start: start, End: end})
	}
	return src, nil
}
