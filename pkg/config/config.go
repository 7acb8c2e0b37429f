// Package config loads the audiosync settings from a file and the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/audiosync"
	"github.com/xaionaro-go/audiosync/pkg/capture"
	"github.com/xaionaro-go/audiosync/pkg/reference"
)

const EnvPrefix = "AUDIOSYNC"

// Config represents the complete audiosync configuration
type Config struct {
	Sync      SyncConfig      `mapstructure:"sync"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// SyncConfig controls the correlation schedule and the match verdict
type SyncConfig struct {
	SampleRate    uint32 `mapstructure:"sample_rate"`
	MinDurationMS int    `mapstructure:"min_duration_ms"`
	StepMS        int    `mapstructure:"step_ms"`
	MaxDurationMS int    `mapstructure:"max_duration_ms"`
	// Threshold is the minimal Pearson coefficient of a match
	Threshold float64 `mapstructure:"threshold"`
	// MinOverlap is the minimal overlap as a fraction of the window
	MinOverlap float64 `mapstructure:"min_overlap"`
	// Options: "xcorr", "gccphat"
	Algorithm string `mapstructure:"algorithm"`
}

// CaptureConfig selects what to record
type CaptureConfig struct {
	// Device is a device name, a sink name, or an application name to
	// route; empty means the monitor of the default output
	Device string `mapstructure:"device"`
	// Backend forces a recorder backend ("pulseaudio", "portaudio");
	// empty picks the best available one
	Backend string `mapstructure:"backend"`
}

// ReferenceConfig controls how a track is found and decoded
type ReferenceConfig struct {
	YTDLPCommand     string   `mapstructure:"ytdlp_command"`
	YTDLPArgs        []string `mapstructure:"ytdlp_args"`
	ResolveTimeoutMS int      `mapstructure:"resolve_timeout_ms"`
	FFmpegCommand    string   `mapstructure:"ffmpeg_command"`
	CacheSize        int      `mapstructure:"cache_size"`
	CacheTTLMinutes  int      `mapstructure:"cache_ttl_minutes"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// File enables logging into a rotated file instead of stderr
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Dir receives a dump of every correlation attempt while debugging
	Dir string `mapstructure:"dir"`
}

func Default() *Config {
	policy := audiosync.DefaultPolicy()
	return &Config{
		Sync: SyncConfig{
			SampleRate:    uint32(policy.SampleRate),
			MinDurationMS: int(policy.MinDuration.Milliseconds()),
			StepMS:        int(policy.Step.Milliseconds()),
			MaxDurationMS: int(policy.MaxDuration.Milliseconds()),
			Threshold:     policy.Threshold,
			MinOverlap:    policy.MinOverlap,
			Algorithm:     policy.Algorithm,
		},
		Reference: ReferenceConfig{
			YTDLPCommand:     reference.DefaultYTDLPCommand,
			YTDLPArgs:        reference.DefaultYTDLPArgs,
			ResolveTimeoutMS: int(time.Minute.Milliseconds()),
			FFmpegCommand:    reference.DefaultFFmpegCommand,
			CacheSize:        reference.DefaultCacheSize,
			CacheTTLMinutes:  int(reference.DefaultCacheTTL.Minutes()),
		},
		Logging: LoggingConfig{
			Level:      "warning",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("sync.sample_rate", defaults.Sync.SampleRate)
	v.SetDefault("sync.min_duration_ms", defaults.Sync.MinDurationMS)
	v.SetDefault("sync.step_ms", defaults.Sync.StepMS)
	v.SetDefault("sync.max_duration_ms", defaults.Sync.MaxDurationMS)
	v.SetDefault("sync.threshold", defaults.Sync.Threshold)
	v.SetDefault("sync.min_overlap", defaults.Sync.MinOverlap)
	v.SetDefault("sync.algorithm", defaults.Sync.Algorithm)

	v.SetDefault("capture.device", defaults.Capture.Device)
	v.SetDefault("capture.backend", defaults.Capture.Backend)

	v.SetDefault("reference.ytdlp_command", defaults.Reference.YTDLPCommand)
	v.SetDefault("reference.ytdlp_args", defaults.Reference.YTDLPArgs)
	v.SetDefault("reference.resolve_timeout_ms", defaults.Reference.ResolveTimeoutMS)
	v.SetDefault("reference.ffmpeg_command", defaults.Reference.FFmpegCommand)
	v.SetDefault("reference.cache_size", defaults.Reference.CacheSize)
	v.SetDefault("reference.cache_ttl_minutes", defaults.Reference.CacheTTLMinutes)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	v.SetDefault("debug.enabled", defaults.Debug.Enabled)
	v.SetDefault("debug.dir", defaults.Debug.Dir)
}

// NewViper returns a viper instance with the defaults registered and
// the AUDIOSYNC_* environment bound. If configFile is not empty, it is
// read as well.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile == "" {
		return v, nil
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file %q: %w", configFile, err)
	}
	return v, nil
}

// Load reads the configuration from viper into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal the config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

func (c *Config) Policy() audiosync.Policy {
	return audiosync.Policy{
		SampleRate:  types.SampleRate(c.Sync.SampleRate),
		MinDuration: time.Duration(c.Sync.MinDurationMS) * time.Millisecond,
		Step:        time.Duration(c.Sync.StepMS) * time.Millisecond,
		MaxDuration: time.Duration(c.Sync.MaxDurationMS) * time.Millisecond,
		Threshold:   c.Sync.Threshold,
		MinOverlap:  c.Sync.MinOverlap,
		Algorithm:   c.Sync.Algorithm,
		DebugDir:    c.Debug.Dir,
	}
}

// Resolver builds the track resolver chain described by the config.
func (c *ReferenceConfig) Resolver() reference.Resolver {
	ytdlp := reference.NewYTDLPResolver()
	ytdlp.Command = c.YTDLPCommand
	if len(c.YTDLPArgs) > 0 {
		ytdlp.Args = c.YTDLPArgs
	}
	ytdlp.Timeout = time.Duration(c.ResolveTimeoutMS) * time.Millisecond

	var tail reference.Resolver = ytdlp
	if c.CacheSize > 0 {
		tail = reference.NewCachingResolver(ytdlp, c.CacheSize, time.Duration(c.CacheTTLMinutes)*time.Minute)
	}
	return reference.ChainResolver{
		reference.LocalResolver{},
		tail,
	}
}

func (c *ReferenceConfig) Decoder() reference.Decoder {
	d := reference.NewAutoDecoder()
	d.FFmpeg.Command = c.FFmpegCommand
	return d
}

func (c *CaptureConfig) RecorderFactory() capture.RecorderFactory {
	if c.Backend == "" {
		return capture.DefaultRecorderFactory
	}
	return capture.BackendRecorderFactory(c.Backend)
}

// NewEngine builds an engine that follows the config.
func (c *Config) NewEngine(opts ...audiosync.Option) (*audiosync.Engine, error) {
	policy := c.Policy()
	capt := capture.NewSource(policy.SampleRate)
	capt.RecorderFactory = c.Capture.RecorderFactory()
	ref := reference.NewSource(policy.SampleRate, policy.MaxDuration)
	ref.Resolver = c.Reference.Resolver()
	ref.Decoder = c.Reference.Decoder()

	e, err := audiosync.New(policy, append([]audiosync.Option{
		audiosync.WithCaptureSource(capt),
		audiosync.WithReferenceSource(ref),
	}, opts...)...)
	if err != nil {
		return nil, err
	}
	ref.Debug = e.Debug
	e.SetDebug(c.Debug.Enabled)
	return e, nil
}
