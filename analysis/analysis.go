// Package analysis runs the post-hoc report over a finished recording.
// The audio itself goes to a multimodal model; the transcript rides along
// as text.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"earshot/gemini"
	"earshot/log"
	"earshot/recorder"
)

const DefaultTimeout = 20 * time.Second

var DefaultModels = []string{"gemini-2.0-flash", "gemini-1.5-flash"}

var (
	ErrEndpointsExhausted = errors.New("analysis: every model endpoint failed")
	ErrNoAudio            = errors.New("analysis: recording is empty")
	ErrTooShort           = errors.New("analysis: not enough conversation to analyze")
)

type Report struct {
	HTML     string
	Model    string
	Attempts []gemini.Attempt
}

type Options struct {
	Models        []string
	Timeout       time.Duration
	MinUtterances int
}

type Analyzer struct {
	model   gemini.Model
	models  []string
	timeout time.Duration
	minUtt  int
}

func New(m gemini.Model, opts Options) *Analyzer {
	a := &Analyzer{model: m, models: opts.Models, timeout: opts.Timeout, minUtt: opts.MinUtterances}
	if len(a.models) == 0 {
		a.models = DefaultModels
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	return a
}

func (a *Analyzer) Models() []string { return a.models }

// Analyze sends the recording and transcript to each model in turn and
// returns the first non-empty report. Exhausting the list is terminal for
// this call; callers retry by calling Analyze again.
func (a *Analyzer) Analyze(ctx context.Context, blob recorder.Blob, transcript []string) (Report, error) {
	if blob.Size() == 0 {
		return Report{}, ErrNoAudio
	}
	if len(transcript) < a.minUtt {
		return Report{}, fmt.Errorf("%w: %d utterances, need %d", ErrTooShort, len(transcript), a.minUtt)
	}

	parts := []gemini.Part{
		gemini.Text(Prompt(transcript)),
		gemini.Inline(blob.Data, baseMIME(blob.MIMEType)),
	}

	out, err := gemini.Fallback(ctx, a.model, a.models, parts, a.timeout, func(text string) error {
		if Clean(text) == "" {
			return gemini.ErrEmptyText
		}
		return nil
	})
	for _, at := range out.Attempts {
		if at.Err != nil {
			log.Warnf("analysis: %s failed after %s: %v", at.Model, at.Elapsed.Round(time.Millisecond), at.Err)
		}
	}
	if err != nil {
		return Report{Attempts: out.Attempts}, fmt.Errorf("%w: %w", ErrEndpointsExhausted, err)
	}
	log.Infof("analysis: report from %s (%d bytes audio)", out.Model, blob.Size())
	return Report{HTML: Clean(out.Text), Model: out.Model, Attempts: out.Attempts}, nil
}

// Clean strips markdown code fences the model adds despite being asked
// not to.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "```html", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// baseMIME drops codec parameters, which inline data does not accept.
func baseMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		return strings.TrimSpace(mime[:i])
	}
	return mime
}

func Prompt(transcript []string) string {
	var b strings.Builder
	b.WriteString("당신은 대화 분석 전문가입니다. 첨부된 녹음과 아래 대화 기록을 바탕으로 '종합 분석 보고서'를 반드시 '한국어'로만 작성해 주세요.\n")
	b.WriteString("마크다운 블록(```html)을 넣지 말고 생 HTML 태그만 출력하세요.\n")
	b.WriteString("- <h2> 태그로 제목 구분\n- <ul>, <li>로 핵심 내용 정리\n- 🎯 이모지 적절히 사용\n")
	b.WriteString("[보고서 구성]:\n")
	b.WriteString("1. 전체적인 대화 분위기 요약 (화자 간의 상호작용 중심)\n")
	b.WriteString("2. 다룬 주제와 흐름\n")
	b.WriteString("3. 놓치지 말아야 할 결정적 시그널\n")
	b.WriteString("4. 나를 위한 실전 대화 솔루션 및 피드백\n")
	b.WriteString("대화 내용:\n")
	for _, line := range transcript {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
