// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the recorder service configuration with precedence
// environment > file > defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/streamrec/internal/recorder"
	"github.com/ManuGH/streamrec/internal/telemetry"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "STREAMREC_"

var ErrUnsupportedFormat = errors.New("unsupported config format")

// AppConfig is the effective service configuration.
type AppConfig struct {
	Version  string          `yaml:"-"`
	LogLevel string          `yaml:"logLevel"`
	DataDir  string          `yaml:"dataDir"`
	API      APIConfig       `yaml:"api"`
	Recorder RecorderConfig  `yaml:"recorder"`
	HLS      HLSConfig       `yaml:"hls"`
	Direct   DirectConfig    `yaml:"direct"`
	FFmpeg   FFmpegConfig    `yaml:"ffmpeg"`
	Tele     TelemetryConfig `yaml:"telemetry"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

type RecorderConfig struct {
	Buffering    int           `yaml:"buffering"`
	StopTimeout  time.Duration `yaml:"stopTimeout"`
	CleanupStale bool          `yaml:"cleanupStale"`
}

type HLSConfig struct {
	SegmentRetries  int           `yaml:"segmentRetries"`
	SegmentTimeout  time.Duration `yaml:"segmentTimeout"`
	PlaylistTimeout time.Duration `yaml:"playlistTimeout"`
	MasterTimeout   time.Duration `yaml:"masterTimeout"`
	MaxSleep        time.Duration `yaml:"maxSleep"`
}

type DirectConfig struct {
	ChunkSize        int           `yaml:"chunkSize"`
	ProgressInterval time.Duration `yaml:"progressInterval"`
}

type FFmpegConfig struct {
	Bin        string        `yaml:"bin"`
	KillGrace  time.Duration `yaml:"killGrace"`
	ReadyTicks int           `yaml:"readyTicks"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	o := recorder.DefaultOptions()
	return AppConfig{
		LogLevel: "info",
		DataDir:  "recordings",
		API:      APIConfig{ListenAddr: "", RateLimit: 120},
		Recorder: RecorderConfig{
			Buffering:    o.Buffering,
			StopTimeout:  o.StopTimeout,
			CleanupStale: true,
		},
		HLS: HLSConfig{
			SegmentRetries:  o.HLS.SegmentRetries,
			SegmentTimeout:  o.HLS.SegmentTimeout,
			PlaylistTimeout: o.HLS.PlaylistTimeout,
			MasterTimeout:   o.HLS.MasterTimeout,
			MaxSleep:        o.HLS.MaxSleep,
		},
		Direct: DirectConfig{
			ChunkSize:        o.Direct.ChunkSize,
			ProgressInterval: o.Direct.ProgressInterval,
		},
		FFmpeg: FFmpegConfig{
			Bin:        o.FFmpeg.Bin,
			KillGrace:  o.FFmpeg.KillGrace,
			ReadyTicks: o.FFmpeg.ReadyTicks,
		},
		Tele: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// Loader resolves an AppConfig from defaults, an optional YAML file and the
// environment.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Load applies defaults, then the file, then environment overrides, and
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. Unknown keys are fatal.
func loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %q (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.API.ListenAddr = l.envString("LISTEN", cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt("RATE_LIMIT", cfg.API.RateLimit)

	cfg.Recorder.Buffering = l.envInt("BUFFERING", cfg.Recorder.Buffering)
	cfg.Recorder.StopTimeout = l.envDuration("STOP_TIMEOUT", cfg.Recorder.StopTimeout)
	cfg.Recorder.CleanupStale = l.envBool("CLEANUP_STALE", cfg.Recorder.CleanupStale)

	cfg.HLS.SegmentRetries = l.envInt("HLS_SEGMENT_RETRIES", cfg.HLS.SegmentRetries)
	cfg.HLS.SegmentTimeout = l.envDuration("HLS_SEGMENT_TIMEOUT", cfg.HLS.SegmentTimeout)
	cfg.HLS.PlaylistTimeout = l.envDuration("HLS_PLAYLIST_TIMEOUT", cfg.HLS.PlaylistTimeout)
	cfg.HLS.MasterTimeout = l.envDuration("HLS_MASTER_TIMEOUT", cfg.HLS.MasterTimeout)
	cfg.HLS.MaxSleep = l.envDuration("HLS_MAX_SLEEP", cfg.HLS.MaxSleep)

	cfg.Direct.ChunkSize = l.envInt("DIRECT_CHUNK_SIZE", cfg.Direct.ChunkSize)
	cfg.Direct.ProgressInterval = l.envDuration("DIRECT_PROGRESS_INTERVAL", cfg.Direct.ProgressInterval)

	cfg.FFmpeg.Bin = l.envString("FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.KillGrace = l.envDuration("FFMPEG_KILL_GRACE", cfg.FFmpeg.KillGrace)
	cfg.FFmpeg.ReadyTicks = l.envInt("FFMPEG_READY_TICKS", cfg.FFmpeg.ReadyTicks)

	cfg.Tele.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Tele.Enabled)
	cfg.Tele.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Tele.Exporter)
	cfg.Tele.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Tele.Endpoint)
	cfg.Tele.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Tele.SamplingRate)
}

func (l *Loader) envString(key, def string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, def)
}

func (l *Loader) envInt(key string, def int) int {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, def)
}

// RecorderOptions maps the configuration onto recorder tunables. Fields the
// file does not expose keep their recorder defaults.
func (c AppConfig) RecorderOptions() recorder.Options {
	o := recorder.DefaultOptions()
	o.Buffering = c.Recorder.Buffering
	o.StopTimeout = c.Recorder.StopTimeout
	o.HLS.SegmentRetries = c.HLS.SegmentRetries
	o.HLS.SegmentTimeout = c.HLS.SegmentTimeout
	o.HLS.PlaylistTimeout = c.HLS.PlaylistTimeout
	o.HLS.MasterTimeout = c.HLS.MasterTimeout
	o.HLS.MaxSleep = c.HLS.MaxSleep
	o.Direct.ChunkSize = c.Direct.ChunkSize
	o.Direct.ProgressInterval = c.Direct.ProgressInterval
	o.FFmpeg.Bin = c.FFmpeg.Bin
	o.FFmpeg.KillGrace = c.FFmpeg.KillGrace
	o.FFmpeg.ReadyTicks = c.FFmpeg.ReadyTicks
	return o
}

// Telemetry maps the configuration onto the tracer provider settings.
func (c AppConfig) Telemetry() telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Tele.Enabled,
		ServiceName:    "streamrec",
		ServiceVersion: c.Version,
		ExporterType:   c.Tele.Exporter,
		Endpoint:       c.Tele.Endpoint,
		SamplingRate:   c.Tele.SamplingRate,
	}
}
