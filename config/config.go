// Package config loads earshot's YAML settings over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

type Recognizer struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"-"`
}

type Classifier struct {
	Model         string `yaml:"model"`
	Timeout       int    `yaml:"timeout"`
	ContextWindow int    `yaml:"context_window"`
}

type Analysis struct {
	Models        []string `yaml:"models"`
	Timeout       int      `yaml:"timeout"`
	MinUtterances int      `yaml:"min_utterances"`
}

type History struct {
	Capacity      int `yaml:"capacity"`
	DedupWindowMs int `yaml:"dedup_window_ms"`
}

type Restart struct {
	MaxAttempts int `yaml:"max_attempts"`
	Window      int `yaml:"window"`
}

type Recording struct {
	Formats    []string `yaml:"formats"`
	SampleRate int      `yaml:"sample_rate"`
	Gain       int      `yaml:"gain"`
}

type Config struct {
	Locale     string     `yaml:"locale"`
	Device     string     `yaml:"device"`
	Hotkey     string     `yaml:"hotkey"`
	Recognizer Recognizer `yaml:"recognizer"`
	Classifier Classifier `yaml:"classifier"`
	Analysis   Analysis   `yaml:"analysis"`
	History    History    `yaml:"history"`
	Restart    Restart    `yaml:"restart"`
	Recording  Recording  `yaml:"recording"`
	OutputDir  string     `yaml:"output_dir"`
	DataDir    string     `yaml:"data_dir"`
}

func Default() Config {
	return Config{
		Locale: "ko-KR",
		Hotkey: "ctrl+shift+space",
		Recognizer: Recognizer{
			Provider: "deepgram",
			Model:    "nova-3",
			Endpoint: "wss://api.deepgram.com/v1/listen",
		},
		Classifier: Classifier{Model: "gemini-2.0-flash", Timeout: 15, ContextWindow: 5},
		Analysis: Analysis{
			Models:        []string{"gemini-2.0-flash", "gemini-1.5-flash"},
			Timeout:       20,
			MinUtterances: 3,
		},
		History:   History{Capacity: 50, DedupWindowMs: 2000},
		Restart:   Restart{MaxAttempts: 3, Window: 5},
		Recording: Recording{Formats: []string{"audio/ogg;codecs=opus", "audio/flac", "audio/wav"}, SampleRate: 16000, Gain: 1},
		OutputDir: defaultOutputDir(),
		DataDir:   defaultDataDir(),
	}
}

func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			base = dir
		} else {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "earshot", "config.yaml")
}

func defaultOutputDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Downloads")
}

func defaultDataDir() string {
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, "earshot")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "earshot")
}

// Load reads path over the defaults. An empty path means DefaultPath; a
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.OutputDir = expandHome(cfg.OutputDir)
	cfg.DataDir = expandHome(cfg.DataDir)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")); v != "" {
		c.Recognizer.APIKey = v
	}
	if v := os.Getenv("EARSHOT_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Locale == "" {
		errs = append(errs, errors.New("locale is empty"))
	}
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, errors.New("classifier.timeout must be positive"))
	}
	if c.Analysis.Timeout <= 0 {
		errs = append(errs, errors.New("analysis.timeout must be positive"))
	}
	if len(c.Analysis.Models) == 0 {
		errs = append(errs, errors.New("analysis.models is empty"))
	}
	if c.History.Capacity <= 0 {
		errs = append(errs, errors.New("history.capacity must be positive"))
	}
	if c.History.DedupWindowMs < 0 {
		errs = append(errs, errors.New("history.dedup_window_ms must not be negative"))
	}
	if c.Restart.MaxAttempts <= 0 {
		errs = append(errs, errors.New("restart.max_attempts must be positive"))
	}
	if len(c.Recording.Formats) == 0 {
		errs = append(errs, errors.New("recording.formats is empty"))
	}
	if c.Recording.SampleRate <= 0 {
		errs = append(errs, errors.New("recording.sample_rate must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.Timeout) * time.Second
}

func (c Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.Timeout) * time.Second
}

func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.History.DedupWindowMs) * time.Millisecond
}

func (c Config) RestartWindow() time.Duration {
	return time.Duration(c.Restart.Window) * time.Second
}

// Save writes c as YAML to path.
func Save(path string, c Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
