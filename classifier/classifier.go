// Package classifier asks a language model whether an utterance moved the
// conversation to a new topic. Every failure mode collapses into a result
// without a verdict; nothing here panics or retries.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"earshot/gemini"
	"earshot/log"
)

const (
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 15 * time.Second
	// ContextWindow is how many recent utterances accompany a request.
	ContextWindow = 5
)

var ErrNoVerdict = errors.New("classifier: no verdict")

type Verdict struct {
	CurrentTopic   *string `json:"currentTopic"`
	IsTopicChanged bool    `json:"isTopicChanged"`
	Mood           string  `json:"mood,omitempty"`
	Intent         string  `json:"intent,omitempty"`
	Suggestion     string  `json:"suggestion,omitempty"`
	Speaker        string  `json:"speaker,omitempty"`
}

func (v *Verdict) Topic() string {
	if v == nil || v.CurrentTopic == nil {
		return ""
	}
	return strings.TrimSpace(*v.CurrentTopic)
}

// Changed reports whether the verdict announces a new, named topic.
func (v *Verdict) Changed() bool {
	return v != nil && v.IsTopicChanged && v.Topic() != ""
}

// Result is the outcome of one Classify call. Verdict is nil whenever Err
// is set.
type Result struct {
	Verdict *Verdict
	Err     error
	Elapsed time.Duration
}

func (r Result) OK() bool { return r.Err == nil && r.Verdict != nil }

type Options struct {
	Model   string
	Timeout time.Duration
	Window  int
}

type Client struct {
	model   gemini.Model
	name    string
	timeout time.Duration
	window  int
}

func New(m gemini.Model, opts Options) *Client {
	c := &Client{model: m, name: opts.Model, timeout: opts.Timeout, window: opts.Window}
	if c.name == "" {
		c.name = DefaultModel
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.window <= 0 {
		c.window = ContextWindow
	}
	return c
}

func (c *Client) Window() int { return c.window }

// Classify sends utterance with at most Window() recent entries. The call
// is cut off after the configured timeout.
func (c *Client) Classify(ctx context.Context, utterance string, recent []string) Result {
	if len(recent) > c.window {
		recent = recent[len(recent)-c.window:]
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.model.Generate(ctx, c.name, []gemini.Part{gemini.Text(Prompt(utterance, recent))})
	if err != nil {
		return c.fail(start, err)
	}
	v, err := Parse(text)
	if err != nil {
		return c.fail(start, err)
	}
	elapsed := time.Since(start)
	log.Classification(elapsed, true, "")
	return Result{Verdict: v, Elapsed: elapsed}
}

func (c *Client) fail(start time.Time, cause error) Result {
	elapsed := time.Since(start)
	log.Classification(elapsed, false, cause.Error())
	return Result{Err: fmt.Errorf("%w: %w", ErrNoVerdict, cause), Elapsed: elapsed}
}

// Prompt builds the per-utterance request text.
func Prompt(utterance string, recent []string) string {
	ctx := "(없음)"
	if len(recent) > 0 {
		ctx = strings.Join(recent, " | ")
	}

	var b strings.Builder
	b.WriteString("너는 실시간 대화의 맥락을 추적하는 분석기다.\n")
	b.WriteString("최근 대화와 새 발화를 보고 대화 주제가 바뀌었는지 판단하라.\n\n")
	fmt.Fprintf(&b, "최근 대화: %s\n", ctx)
	fmt.Fprintf(&b, "새 발화: %q\n\n", utterance)
	b.WriteString("다른 설명 없이 아래 형식의 JSON 객체 하나만 출력하라.\n")
	b.WriteString(`{"currentTopic": "짧은 주제 이름 또는 null", "isTopicChanged": true 또는 false, `)
	b.WriteString(`"mood": "positive|negative|neutral", "intent": "화자의 의도", `)
	b.WriteString(`"suggestion": "짧은 도움말 또는 빈 문자열", "speaker": "화자 추정 또는 빈 문자열"}`)
	b.WriteString("\n")
	return b.String()
}
