// Package doctor checks that everything a recording session depends on is
// in place: keys, microphone, hotkey, and the model endpoint.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"earshot/audio"
	"earshot/config"
	"earshot/credential"
	"earshot/encoder"
	"earshot/gemini"
	"earshot/hotkey"
	"earshot/shutdown"
)

type Check struct {
	Name string
	// Run returns a short detail on success.
	Run func(ctx context.Context) (string, error)
	// Stop means later checks are pointless when this one fails.
	Stop bool
}

type Options struct {
	Config      config.Config
	Credentials credential.Store
	// Audio defaults to the platform context.
	Audio audio.Context
	// NewModel defaults to a Gemini client.
	NewModel func(ctx context.Context, apiKey string) (gemini.Model, error)
	// Probe is how long to record during the microphone check.
	Probe time.Duration
}

// Run performs every check and returns an exit code (0 all pass, 1 any
// fail).
func Run(opts Options) int {
	resetTerminal()
	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	fmt.Println("earshot doctor - system diagnostics")
	fmt.Println("===================================")
	code := RunChecks(ctx, os.Stdout, Checks(opts))
	resetTerminal()
	return code
}

func RunChecks(ctx context.Context, w io.Writer, checks []Check) int {
	code := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		if err := ctx.Err(); err != nil {
			fmt.Fprintln(w, "  SKIP: interrupted")
			return 1
		}
		detail, err := c.Run(ctx)
		if err != nil {
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			code = 1
			if c.Stop {
				fmt.Fprintln(w, "\nStopping: later checks depend on this one.")
				return code
			}
			continue
		}
		fmt.Fprintf(w, "  PASS: %s\n", detail)
	}
	fmt.Fprintln(w)
	if code == 0 {
		fmt.Fprintln(w, "All checks passed!")
	} else {
		fmt.Fprintln(w, "Some checks failed. See details above.")
	}
	return code
}

func Checks(opts Options) []Check {
	if opts.NewModel == nil {
		opts.NewModel = func(ctx context.Context, key string) (gemini.Model, error) {
			return gemini.New(ctx, gemini.Options{APIKey: key})
		}
	}
	if opts.Probe <= 0 {
		opts.Probe = 2 * time.Second
	}
	return []Check{
		{Name: "Speech recognizer", Run: func(context.Context) (string, error) { return checkRecognizer(opts.Config) }},
		{Name: "Model credential", Run: func(ctx context.Context) (string, error) { return checkCredential(ctx, opts.Credentials) }},
		{Name: "Recording format", Run: func(context.Context) (string, error) { return checkFormat(opts.Config) }},
		{Name: "Microphone", Run: func(ctx context.Context) (string, error) { return checkMicrophone(ctx, opts) }},
		{Name: "Global hotkey", Run: func(context.Context) (string, error) { return hotkey.Diagnose() }},
		{Name: "Model endpoint", Run: func(ctx context.Context) (string, error) { return checkModel(ctx, opts) }},
	}
}

func checkRecognizer(cfg config.Config) (string, error) {
	if cfg.Recognizer.APIKey == "" {
		return "", errors.New("DEEPGRAM_API_KEY is not set; sessions cannot start")
	}
	return fmt.Sprintf("%s (%s, %s)", cfg.Recognizer.Provider, cfg.Recognizer.Model, cfg.Locale), nil
}

func checkCredential(ctx context.Context, s credential.Store) (string, error) {
	key, err := credential.Resolve(ctx, s)
	if errors.Is(err, credential.ErrNotFound) {
		return "", fmt.Errorf("no %s; run: earshot key set <key>", credential.KeyName)
	}
	if err != nil {
		return "", err
	}
	return credential.Mask(key), nil
}

func checkFormat(cfg config.Config) (string, error) {
	f, err := encoder.Negotiate(cfg.Recording.Formats)
	if err != nil {
		return "", err
	}
	return f.MIMEType, nil
}

func checkMicrophone(ctx context.Context, opts Options) (string, error) {
	actx := opts.Audio
	if actx == nil {
		var err error
		actx, err = audio.NewContext()
		if err != nil {
			return "", fmt.Errorf("cannot connect to audio: %w", err)
		}
		defer actx.Close()
	}

	device, err := audio.FindDevice(actx, opts.Config.Device)
	if err != nil {
		return "", err
	}
	capture, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: uint32(opts.Config.Recording.SampleRate),
		Channels:   1,
		Gain:       opts.Config.Recording.Gain,
	})
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			return "", fmt.Errorf("microphone access denied: %w", err)
		}
		return "", err
	}
	defer capture.Close()

	var mu sync.Mutex
	var total int
	var peak int16
	capture.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		defer mu.Unlock()
		total += len(data)
		peak = max(peak, Peak(data))
	})
	if err := capture.Start(); err != nil {
		return "", err
	}

	select {
	case <-time.After(opts.Probe):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	capture.Stop()
	capture.ClearCallback()

	mu.Lock()
	defer mu.Unlock()
	if total == 0 {
		return "", errors.New("no audio captured")
	}
	detail := fmt.Sprintf("%s: %.1f KB in %s, peak %d", capture.DeviceName(), float64(total)/1024, opts.Probe, peak)
	if peak == 0 {
		detail += " (silent: check mute or input level)"
	}
	return detail, nil
}

// Peak returns the largest absolute sample in 16-bit little-endian PCM.
func Peak(pcm []byte) int16 {
	var p int16
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		if s < 0 {
			if s == -32768 {
				s = 32767
			} else {
				s = -s
			}
		}
		p = max(p, s)
	}
	return p
}

func checkModel(ctx context.Context, opts Options) (string, error) {
	key, err := credential.Resolve(ctx, opts.Credentials)
	if err != nil {
		return "", errors.New("skipped: no credential")
	}
	m, err := opts.NewModel(ctx, key)
	if err != nil {
		return "", err
	}
	model := opts.Config.Classifier.Model
	ctx, cancel := context.WithTimeout(ctx, opts.Config.ClassifierTimeout())
	defer cancel()
	start := time.Now()
	if _, err := m.Generate(ctx, model, []gemini.Part{gemini.Text("ping")}); err != nil {
		return "", fmt.Errorf("%s: %w", model, err)
	}
	return fmt.Sprintf("%s answered in %s", model, time.Since(start).Round(time.Millisecond)), nil
}
