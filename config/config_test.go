package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingDefaultIsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("EARSHOT_OUTPUT_DIR", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Locale != "ko-KR" {
		t.Errorf("Locale = %q", cfg.Locale)
	}
	if cfg.ClassifierTimeout() != 15*time.Second || cfg.AnalysisTimeout() != 20*time.Second {
		t.Errorf("timeouts = %v, %v", cfg.ClassifierTimeout(), cfg.AnalysisTimeout())
	}
	if cfg.DedupWindow() != 2*time.Second || cfg.History.Capacity != 50 {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.Restart.MaxAttempts != 3 || cfg.RestartWindow() != 5*time.Second {
		t.Errorf("restart = %+v", cfg.Restart)
	}
	if cfg.Classifier.ContextWindow != 5 {
		t.Errorf("context window = %d", cfg.Classifier.ContextWindow)
	}
	if got := cfg.Recording.Formats; len(got) != 3 || got[0] != "audio/ogg;codecs=opus" {
		t.Errorf("formats = %v", got)
	}
}

func TestLoadExplicitMissingFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for an explicit missing file")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "dg-secret")
	t.Setenv("EARSHOT_OUTPUT_DIR", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
locale: en-US
classifier:
  timeout: 10
analysis:
  models: [gemini-2.5-flash]
history:
  capacity: 100
output_dir: ~/recordings
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Locale != "en-US" || cfg.Classifier.Timeout != 10 || cfg.History.Capacity != 100 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Classifier.Model != "gemini-2.0-flash" {
		t.Errorf("unset field lost its default: %q", cfg.Classifier.Model)
	}
	if len(cfg.Analysis.Models) != 1 || cfg.Analysis.Models[0] != "gemini-2.5-flash" {
		t.Errorf("models = %v", cfg.Analysis.Models)
	}
	if cfg.Recognizer.APIKey != "dg-secret" {
		t.Errorf("recognizer key = %q", cfg.Recognizer.APIKey)
	}
	if strings.HasPrefix(cfg.OutputDir, "~") {
		t.Errorf("output dir not expanded: %s", cfg.OutputDir)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad yaml", "locale: [", "parse config"},
		{"zero capacity", "history:\n  capacity: 0\n", "history.capacity"},
		{"no models", "analysis:\n  models: []\n", "analysis.models"},
		{"no formats", "recording:\n  formats: []\n", "recording.formats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			os.WriteFile(path, []byte(tt.data), 0644)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("EARSHOT_OUTPUT_DIR", "")
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Locale = "ja-JP"
	cfg.Recognizer.APIKey = "never-written"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "never-written") {
		t.Error("api key must not be saved")
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Locale != "ja-JP" {
		t.Errorf("Locale = %q", got.Locale)
	}
}
