package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"earshot/archive"
	"earshot/audio"
	"earshot/beep"
	"earshot/classifier"
	"earshot/credential"
	"earshot/export"
	"earshot/gemini"
	"earshot/log"
	"earshot/recognizer"
	"earshot/session"
	"earshot/toc"
)

const (
	offlineKey    = "offline-key"
	offlineReport = "<h2>🎯 요약</h2><ul><li>오프라인 분석 보고서</li></ul>"
	waitTimeout   = 10 * time.Second
)

// runTestMode drives a session from a line script on in and prints every
// notification to out. The recognizer is always scripted; with offline the
// model and credentials are too, so no network is touched.
func runTestMode(g *globalFlags, wavPath string, offline bool, in io.Reader, out io.Writer) error {
	beep.Disable()
	beep.DisableNotify()

	e, err := openTestEnv(g, offline)
	if err != nil {
		return err
	}
	defer e.Close()

	var actx *audio.FakeContext
	if wavPath != "" {
		actx, err = audio.NewFakeContext(wavPath, true)
		if err != nil {
			return fmt.Errorf("load wav: %w", err)
		}
	} else {
		actx = audio.NewFakeContextPCM(nil, false)
	}

	ctrl, rec, n := headlessSession(e, actx, offline, out)
	defer ctrl.Close()

	return runScript(ctrl, rec, n, in)
}

// headlessSession builds a controller over a scripted recognizer.
func headlessSession(e *env, actx audio.Context, offline bool, out io.Writer) (*session.Controller, *recognizer.Fake, *lineNotifier) {
	rec := recognizer.NewFake()
	opts := e.sessionOptions()
	opts.Audio = actx
	opts.Recognizers = func() (recognizer.Recognizer, error) { return rec, nil }
	if offline {
		model := offlineModel()
		opts.NewModel = func(context.Context, string) (gemini.Model, error) { return model, nil }
	}
	n := newLineNotifier(out)
	return session.New(opts, n), rec, n
}

func openTestEnv(g *globalFlags, offline bool) (*env, error) {
	if !offline {
		return openEnv(g)
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	creds := credential.NewMemory()
	if err := creds.Set(context.Background(), credential.KeyName, offlineKey); err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, creds: creds, files: export.NewLocal(cfg.OutputDir)}
	if arch, err := archive.Open(archive.DefaultPath(cfg.DataDir)); err != nil {
		log.Warnf("archive unavailable: %v", err)
	} else {
		e.arch = arch
	}
	return e, nil
}

var utterancePrompt = regexp.MustCompile(`새 발화: (".*")`)

// offlineModel answers classification prompts from the utterance itself:
// "topic: X" announces topic X, anything else keeps the current topic.
// Multi-part requests are analyses and get a fixed report.
func offlineModel() *gemini.FakeModel {
	m := gemini.NewFake()
	m.Respond = func(model string, parts []gemini.Part) gemini.FakeResponse {
		if len(parts) > 1 {
			return gemini.FakeResponse{Text: offlineReport}
		}
		v := classifier.Verdict{}
		if match := utterancePrompt.FindStringSubmatch(parts[0].Text); match != nil {
			if u, err := strconv.Unquote(match[1]); err == nil {
				if name, ok := strings.CutPrefix(u, "topic: "); ok {
					v.CurrentTopic = &name
					v.IsTopicChanged = true
				}
			}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return gemini.FakeResponse{Err: err}
		}
		return gemini.FakeResponse{Text: string(b)}
	}
	return m
}

// runScript executes one command per line until QUIT or end of input.
func runScript(ctrl *session.Controller, rec *recognizer.Fake, n *lineNotifier, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToUpper(cmd) {
		case "START":
			if err := ctrl.Start(context.Background()); err != nil {
				n.printf("ERROR %v", err)
			}
		case "STOP":
			done, err := ctrl.Stop()
			if err != nil {
				n.printf("ERROR %v", err)
				continue
			}
			<-done
		case "INTERIM":
			rec.SimInterim(arg)
		case "FINAL":
			rec.SimFinal(arg)
		case "END":
			rec.SimEnd()
		case "DENY":
			rec.SimError(recognizer.CodeNotAllowed, errors.New("microphone access denied"))
		case "BOOKMARK":
			if _, err := ctrl.Bookmark(arg); err != nil {
				n.printf("ERROR %v", err)
			}
		case "EXPORT":
			format := arg
			if format == "" {
				format = "txt"
			}
			path, err := ctrl.ExportTOC(format)
			if err != nil {
				n.printf("ERROR %v", err)
				continue
			}
			n.printf("EXPORTED %s", path)
		case "ANALYZE":
			res, err := ctrl.Analyze(context.Background())
			if err != nil {
				n.printf("ERROR %v", err)
				continue
			}
			n.printf("ANALYZED %s %s", res.Report.Model, res.ReportPath)
		case "WAIT_TOC":
			want, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("WAIT_TOC: %w", err)
			}
			if !n.waitTOC(want, waitTimeout) {
				n.printf("ERROR timed out waiting for %d toc entries", want)
			}
		case "SLEEP":
			ms, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("SLEEP: %w", err)
			}
			time.Sleep(time.Duration(ms) * time.Millisecond)
		case "QUIT":
			return nil
		default:
			return fmt.Errorf("unknown command %q", cmd)
		}
	}
	return scanner.Err()
}

// lineNotifier prints one line per notification.
type lineNotifier struct {
	mu      sync.Mutex
	out     io.Writer
	entries int
	changed chan struct{}
}

func newLineNotifier(out io.Writer) *lineNotifier {
	return &lineNotifier{out: out, changed: make(chan struct{})}
}

func (n *lineNotifier) printf(format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, format+"\n", args...)
}

func (n *lineNotifier) StateChanged(s session.State)     { n.printf("STATE %s", s) }
func (n *lineNotifier) Listening(text string)            { n.printf("INTERIM %s", text) }
func (n *lineNotifier) Utterance(u recognizer.Utterance) { n.printf("UTTERANCE %s", u.Text) }
func (n *lineNotifier) Alert(attempt int)                { n.printf("ALERT %d", attempt) }

func (n *lineNotifier) Insight(v *classifier.Verdict) {
	n.printf("INSIGHT topic=%q changed=%t", v.Topic(), v.Changed())
}

func (n *lineNotifier) TOCAppended(e toc.Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "TOC %s\n", e)
	n.entries++
	close(n.changed)
	n.changed = make(chan struct{})
}

func (n *lineNotifier) Notice(notice session.Notice) {
	n.printf("NOTICE %s %s", notice.Level, notice.Message)
}

func (n *lineNotifier) Finalized(r *session.Result) {
	n.printf("FINALIZED status=%s utterances=%d entries=%d audio=%s",
		r.Status, len(r.Transcript), len(r.TOC.Entries), r.AudioPath)
}

// waitTOC blocks until at least want entries were appended overall.
func (n *lineNotifier) waitTOC(want int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		n.mu.Lock()
		got, changed := n.entries, n.changed
		n.mu.Unlock()
		if got >= want {
			return true
		}
		select {
		case <-changed:
		case <-deadline:
			return false
		}
	}
}
