//go:build integration

package test_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"earshot/clipboard"
	"earshot/encoder"
)

var (
	testBinary string
	silenceWAV string
)

func TestMain(m *testing.M) {
	testBinary = os.Getenv("EARSHOT_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "EARSHOT_TEST_BIN not set; build earshot and point it at the binary")
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "earshot-it")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	silenceWAV = filepath.Join(dir, "silence.wav")
	if err := writeSilence(silenceWAV, 1); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate silence.wav: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func writeSilence(path string, seconds int) error {
	f, ok := encoder.Lookup("audio/wav")
	if !ok {
		return fmt.Errorf("wav encoder missing")
	}
	data, err := encoder.EncodePCM(f, make([]byte, seconds*encoder.SampleRate*2))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

type run struct {
	out    string
	logDir string
	outDir string
}

func runEarshot(t *testing.T, stdin string, args ...string) run {
	t.Helper()
	dir := t.TempDir()
	r := run{logDir: filepath.Join(dir, "logs"), outDir: filepath.Join(dir, "out")}
	cfg := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("data_dir: %s\noutput_dir: %s\n", filepath.Join(dir, "data"), r.outDir)
	if err := os.WriteFile(cfg, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(testBinary, append([]string{"--config", cfg, "--logpath", r.logDir}, args...)...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("earshot exited with error: %v\noutput: %s", err, out)
	}
	r.out = string(out)
	return r
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func requireGeminiKey(t *testing.T) {
	t.Helper()
	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set")
	}
}

// --- Offline tests ---

func TestOfflineSession(t *testing.T) {
	r := runEarshot(t, cmds("START", "FINAL topic: 날씨", "WAIT_TOC 2", "SLEEP 300", "STOP", "QUIT"),
		"run", "--headless", "--offline", "--wav", silenceWAV)

	if !strings.Contains(r.out, "TOC 00:00 | 📌 주제: 날씨") {
		t.Errorf("missing topic entry in output:\n%s", r.out)
	}
	if !strings.Contains(r.out, "FINALIZED status=complete") {
		t.Errorf("session did not complete:\n%s", r.out)
	}
	if !strings.Contains(readLog(t, r.logDir, "transcript_log.txt"), "topic: 날씨") {
		t.Error("utterance missing from transcript_log.txt")
	}
	diag := readLog(t, r.logDir, "diagnostics_log.txt")
	for _, ev := range []string{"session_start", "topic_change", "session_end"} {
		if !strings.Contains(diag, ev) {
			t.Errorf("expected %s in diagnostics", ev)
		}
	}
	if m, _ := filepath.Glob(filepath.Join(r.outDir, "*.flac")); len(m) != 1 {
		t.Errorf("recordings = %v", m)
	}
}

func TestOfflineAnalyze(t *testing.T) {
	r := runEarshot(t, cmds("START", "FINAL 하나", "FINAL 둘", "FINAL 셋", "SLEEP 300", "STOP", "ANALYZE", "QUIT"),
		"run", "--headless", "--offline", "--wav", silenceWAV)
	if !strings.Contains(r.out, "ANALYZED ") {
		t.Errorf("analysis did not run:\n%s", r.out)
	}
	if m, _ := filepath.Glob(filepath.Join(r.outDir, "*.html")); len(m) != 1 {
		t.Errorf("reports = %v", m)
	}
}

// --- Live model tests ---

func TestLiveClassification(t *testing.T) {
	requireGeminiKey(t)
	r := runEarshot(t, cmds(
		"START",
		"FINAL 오늘 회의에서는 다음 분기 예산을 정하겠습니다",
		"SLEEP 3000",
		"FINAL 그건 그렇고 이번 주말 날씨가 정말 좋다던데요",
		"SLEEP 5000",
		"STOP",
		"QUIT",
	), "run", "--headless", "--wav", silenceWAV)
	if !strings.Contains(r.out, "INSIGHT ") {
		t.Errorf("no classification result:\n%s", r.out)
	}
	if !strings.Contains(readLog(t, r.logDir, "diagnostics_log.txt"), "classification") {
		t.Error("expected classification in diagnostics")
	}
}

func TestAnalyzeCopy(t *testing.T) {
	requireGeminiKey(t)
	r := runEarshot(t, "", "analyze", silenceWAV, "--copy")
	if !strings.Contains(r.out, "report from ") {
		t.Errorf("unexpected output:\n%s", r.out)
	}
	clip, err := clipboard.Read()
	if err != nil {
		t.Skip("clipboard not available")
	}
	if strings.TrimSpace(clip) == "" {
		t.Error("clipboard is empty after --copy")
	}
}
