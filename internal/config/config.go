package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultServiceURL    = "http://localhost:8081/api"
	DefaultRole          = "USER"
	DefaultLanguage      = "en-IN"
	defaultTimeoutSec    = 45
	defaultHistorySize   = 10
	defaultDisplayCap    = 5
	defaultStatusTail    = 10
	defaultStateDirLinux = ".local/state/parley"
	defaultConfigDir     = ".config/parley"

	// MaxRetries bounds transparent dispatch retries regardless of config.
	MaxRetries = 1
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Service struct {
		BaseURL           string  `toml:"base_url"`
		CommandPath       string  `toml:"command_path"`
		ManagerActionPath string  `toml:"manager_action_path"`
		HintsPath         string  `toml:"hints_path"`
		TimeoutSec        float64 `toml:"timeout_sec"`
		RetryMax          int     `toml:"retry_max"`
		RetryBackoffMS    int     `toml:"retry_backoff_ms"`
		Token             string  `toml:"token"`
		TokenFile         string  `toml:"token_file"`
		UserAgent         string  `toml:"user_agent"`
	} `toml:"service"`

	Assistant struct {
		Role         string `toml:"role"`
		Context      string `toml:"context"`
		HistorySize  int    `toml:"history_size"`
		DisplayCap   int    `toml:"display_cap"`
		Currency     string `toml:"currency"`
		SpeakReplies bool   `toml:"speak_replies"`
	} `toml:"assistant"`

	Capture struct {
		Backend     string `toml:"backend"` // none, whisper, bridge
		BridgeURL   string `toml:"bridge_url"`
		Language    string `toml:"language"`
		NoSpeechMS  int    `toml:"no_speech_ms"`
		Interim     bool   `toml:"interim"`
		MaxListenMS int    `toml:"max_listen_ms"`
	} `toml:"capture"`

	Audio struct {
		DeviceName  string `toml:"device_name"`
		DeviceIndex int    `toml:"device_index"`
		SampleRate  int    `toml:"sample_rate"`
		Channels    int    `toml:"channels"`
		FrameMS     int    `toml:"frame_ms"`
	} `toml:"audio"`

	VAD struct {
		Enabled        bool `toml:"enabled"`
		SilenceMS      int  `toml:"silence_ms"`
		Aggressiveness int  `toml:"aggressiveness"`
		MinSpeechMS    int  `toml:"min_speech_ms"`
		MaxSegmentMS   int  `toml:"max_segment_ms"`
	} `toml:"vad"`

	ASR struct {
		ModelPath string `toml:"model_path"`
		Language  string `toml:"language"`
	} `toml:"asr"`

	Speech struct {
		Backend  string   `toml:"backend"` // command, none
		Command  string   `toml:"command"`
		Args     []string `toml:"args"`
		ArgsLine string   `toml:"args_line"` // shell-style alternative to args
		Lang     string   `toml:"lang"`
		Rate     float64  `toml:"rate"`
		Pitch    float64  `toml:"pitch"`
		Volume   float64  `toml:"volume"`
	} `toml:"speech"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir    string `toml:"state_dir"`
		LogPath     string `toml:"log_path"`
		JournalPath string `toml:"journal_path"`
		SocketPath  string `toml:"socket_path"`
		PidPath     string `toml:"pid_path"`
		ConfigPath  string `toml:"-"`
	} `toml:"paths"`

	UI struct {
		StatusTail int `toml:"status_tail"`
		Width      int `toml:"width"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`

	Journal struct {
		Enabled   bool `toml:"enabled"`
		QueueSize int  `toml:"queue_size"`
	} `toml:"journal"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/parley for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "parley")
	}

	cfg := &Config{}

	cfg.Service.BaseURL = DefaultServiceURL
	cfg.Service.CommandPath = "/voice/command"
	cfg.Service.ManagerActionPath = "/voice/manager-action"
	cfg.Service.HintsPath = "/voice/hints"
	cfg.Service.TimeoutSec = defaultTimeoutSec
	cfg.Service.RetryMax = MaxRetries
	cfg.Service.RetryBackoffMS = 500
	cfg.Service.UserAgent = "parley/0.1"

	cfg.Assistant.Role = DefaultRole
	cfg.Assistant.HistorySize = defaultHistorySize
	cfg.Assistant.DisplayCap = defaultDisplayCap
	cfg.Assistant.Currency = "₹"
	cfg.Assistant.SpeakReplies = true

	cfg.Capture.Backend = "none"
	cfg.Capture.Language = DefaultLanguage
	cfg.Capture.NoSpeechMS = 8000
	cfg.Capture.Interim = true
	cfg.Capture.MaxListenMS = 15000

	cfg.Audio.DeviceIndex = -1
	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.FrameMS = 20

	cfg.VAD.Enabled = true
	cfg.VAD.SilenceMS = 1000
	cfg.VAD.Aggressiveness = 2
	cfg.VAD.MinSpeechMS = 300
	cfg.VAD.MaxSegmentMS = 10000

	cfg.ASR.ModelPath = filepath.Join(stateDir, "models", "ggml-small-q5_1.bin")
	cfg.ASR.Language = "en"

	cfg.Speech.Backend = "command"
	cfg.Speech.Command, cfg.Speech.Args = defaultSpeechCommand()
	cfg.Speech.Lang = DefaultLanguage
	cfg.Speech.Rate = 0.95
	cfg.Speech.Pitch = 1.0
	cfg.Speech.Volume = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "parley.log")
	cfg.Paths.JournalPath = filepath.Join(stateDir, "journal.db")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "parley.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "parley.pid")

	cfg.UI.StatusTail = defaultStatusTail
	cfg.UI.Width = 80

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	cfg.Journal.Enabled = true
	cfg.Journal.QueueSize = 32

	return cfg, nil
}

func defaultSpeechCommand() (string, []string) {
	if isMac() {
		return "say", []string{"-r", "${wpm}", "${text}"}
	}
	return "espeak-ng", []string{"-v", "${lang}", "-s", "${wpm}", "-p", "${pitch99}", "-a", "${amplitude}", "${text}"}
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	cfg.normalize()
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), filepath.Dir(cfg.Paths.JournalPath)} {
		if p == "" || p == "." {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// DispatchTimeout returns the per-command deadline.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutSec * float64(time.Second))
}

// RetryBackoff returns the pause before the single transparent retry.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Service.RetryBackoffMS) * time.Millisecond
}

func (c *Config) normalize() {
	if c.Service.RetryMax > MaxRetries {
		c.Service.RetryMax = MaxRetries
	}
	if c.Service.RetryMax < 0 {
		c.Service.RetryMax = 0
	}
	if c.Service.TimeoutSec <= 0 {
		c.Service.TimeoutSec = defaultTimeoutSec
	}
	if c.Assistant.HistorySize <= 0 || c.Assistant.HistorySize > defaultHistorySize {
		c.Assistant.HistorySize = defaultHistorySize
	}
	if c.Assistant.DisplayCap <= 0 {
		c.Assistant.DisplayCap = defaultDisplayCap
	}
	if strings.TrimSpace(c.Assistant.Role) == "" {
		c.Assistant.Role = DefaultRole
	}
	if c.UI.StatusTail <= 0 {
		c.UI.StatusTail = defaultStatusTail
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PARLEY_SERVICE_URL"); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := os.Getenv("PARLEY_TOKEN"); v != "" {
		cfg.Service.Token = v
	}
	if v := os.Getenv("PARLEY_TOKEN_FILE"); v != "" {
		cfg.Service.TokenFile = v
	}
	if v := os.Getenv("PARLEY_ROLE"); v != "" {
		cfg.Assistant.Role = strings.ToUpper(v)
	}
	if v := os.Getenv("PARLEY_CAPTURE_BACKEND"); v != "" {
		cfg.Capture.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("PARLEY_SPEECH_ENABLED"); v != "" {
		cfg.Assistant.SpeakReplies = v != "0" && strings.ToLower(v) != "false"
	}
	if v := os.Getenv("PARLEY_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PARLEY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PARLEY_JOURNAL_ENABLED"); v != "" {
		cfg.Journal.Enabled = v != "0" && strings.ToLower(v) != "false"
	}
}
