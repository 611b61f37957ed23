package doctor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"earshot/audio"
	"earshot/config"
	"earshot/credential"
	"earshot/gemini"
)

func TestRunChecksStopsOnBlockingFailure(t *testing.T) {
	var ran []string
	mk := func(name string, err error, stop bool) Check {
		return Check{Name: name, Stop: stop, Run: func(context.Context) (string, error) {
			ran = append(ran, name)
			return "ok", err
		}}
	}
	var out strings.Builder
	code := RunChecks(context.Background(), &out, []Check{
		mk("a", nil, false),
		mk("b", errors.New("soft"), false),
		mk("c", errors.New("hard"), true),
		mk("d", nil, false),
	})
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
	if strings.Join(ran, "") != "abc" {
		t.Errorf("ran = %v", ran)
	}
	for _, want := range []string{"[1/4] a", "PASS: ok", "FAIL: soft", "FAIL: hard", "Stopping"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunChecksAllPass(t *testing.T) {
	var out strings.Builder
	code := RunChecks(context.Background(), &out, []Check{
		{Name: "x", Run: func(context.Context) (string, error) { return "fine", nil }},
	})
	if code != 0 || !strings.Contains(out.String(), "All checks passed!") {
		t.Errorf("code = %d, out = %s", code, out.String())
	}
}

func testOptions(t *testing.T) Options {
	t.Helper()
	t.Setenv(credential.KeyName, "")
	cfg := config.Default()
	cfg.Recognizer.APIKey = "dg"
	store := credential.NewMemory()
	store.Set(context.Background(), credential.KeyName, "AIzaSyTESTKEY12345")
	pcm := []byte{0x00, 0x10, 0x00, 0xf0}
	return Options{
		Config:      cfg,
		Credentials: store,
		Audio:       audio.NewFakeContextPCM(pcm, false),
		NewModel: func(context.Context, string) (gemini.Model, error) {
			return gemini.NewFake().On(cfg.Classifier.Model, gemini.FakeResponse{Text: "pong"}), nil
		},
		Probe: 10 * time.Millisecond,
	}
}

func TestChecksWithFakes(t *testing.T) {
	opts := testOptions(t)
	checks := Checks(opts)
	byName := map[string]Check{}
	for _, c := range checks {
		byName[c.Name] = c
	}
	ctx := context.Background()

	for _, name := range []string{"Speech recognizer", "Model credential", "Recording format", "Microphone", "Model endpoint"} {
		detail, err := byName[name].Run(ctx)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if detail == "" {
			t.Errorf("%s: empty detail", name)
		}
	}

	if d, _ := byName["Model credential"].Run(ctx); strings.Contains(d, "TESTKEY") {
		t.Errorf("credential detail leaks the key: %q", d)
	}
}

func TestChecksFailures(t *testing.T) {
	opts := testOptions(t)
	opts.Config.Recognizer.APIKey = ""
	opts.Credentials = credential.NewMemory()
	denied := audio.NewFakeContextPCM(nil, false)
	denied.Deny(audio.ErrPermissionDenied)
	opts.Audio = denied

	ctx := context.Background()
	for _, c := range Checks(opts) {
		switch c.Name {
		case "Speech recognizer", "Model credential", "Microphone", "Model endpoint":
			if _, err := c.Run(ctx); err == nil {
				t.Errorf("%s should fail", c.Name)
			}
		}
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		pcm  []byte
		want int16
	}{
		{nil, 0},
		{[]byte{0x00, 0x10}, 0x1000},
		{[]byte{0x00, 0x80}, 32767},
		{[]byte{0xff, 0xff, 0x05, 0x00}, 5},
	}
	for _, tt := range tests {
		if got := Peak(tt.pcm); got != tt.want {
			t.Errorf("Peak(%x) = %d, want %d", tt.pcm, got, tt.want)
		}
	}
}
