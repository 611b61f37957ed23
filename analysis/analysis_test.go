package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"earshot/gemini"
	"earshot/recorder"
)

var testBlob = recorder.Blob{Data: []byte("fLaC-data"), MIMEType: "audio/flac", Ext: "flac"}

var testTranscript = []string{"오늘 날씨 어때", "비 온대", "우산 챙겨"}

func TestAnalyzeFallsBackToSecondModel(t *testing.T) {
	fake := gemini.NewFake().
		On("gemini-2.0-flash", gemini.FakeResponse{Err: errors.New("503 overloaded")}).
		On("gemini-1.5-flash", gemini.FakeResponse{Text: "```html\n<h2>요약</h2>\n```"})

	a := New(fake, Options{MinUtterances: 3})
	report, err := a.Analyze(context.Background(), testBlob, testTranscript)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Model != "gemini-1.5-flash" {
		t.Errorf("Model = %q", report.Model)
	}
	if report.HTML != "<h2>요약</h2>" {
		t.Errorf("HTML = %q", report.HTML)
	}
	if len(report.Attempts) != 2 || report.Attempts[0].Err == nil {
		t.Errorf("Attempts = %+v", report.Attempts)
	}

	calls := fake.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	parts := calls[1].Parts
	if len(parts) != 2 || parts[1].MIMEType != "audio/flac" || string(parts[1].Data) != "fLaC-data" {
		t.Errorf("second call parts = %+v", parts)
	}
	if !strings.Contains(parts[0].Text, "우산 챙겨") {
		t.Error("prompt should carry the transcript")
	}
}

func TestAnalyzeExhausted(t *testing.T) {
	fake := gemini.NewFake().
		On("gemini-2.0-flash", gemini.FakeResponse{Text: "   "}).
		On("gemini-1.5-flash", gemini.FakeResponse{Err: errors.New("boom")})

	_, err := New(fake, Options{}).Analyze(context.Background(), testBlob, testTranscript)
	if !errors.Is(err, ErrEndpointsExhausted) {
		t.Fatalf("err = %v, want ErrEndpointsExhausted", err)
	}
	if !errors.Is(err, gemini.ErrExhausted) {
		t.Error("error should wrap gemini.ErrExhausted")
	}
	if fake.CallCount() != 2 {
		t.Errorf("calls = %d, want one per model", fake.CallCount())
	}
}

func TestAnalyzeTimeoutMovesOn(t *testing.T) {
	fake := gemini.NewFake().
		On("slow", gemini.FakeResponse{Text: "late", Delay: time.Second}).
		On("fast", gemini.FakeResponse{Text: "<p>ok</p>"})

	a := New(fake, Options{Models: []string{"slow", "fast"}, Timeout: 20 * time.Millisecond})
	report, err := a.Analyze(context.Background(), testBlob, testTranscript)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Model != "fast" {
		t.Errorf("Model = %q, want fast", report.Model)
	}
}

func TestAnalyzePreconditions(t *testing.T) {
	fake := gemini.NewFake()
	a := New(fake, Options{MinUtterances: 3})

	if _, err := a.Analyze(context.Background(), recorder.Blob{}, testTranscript); !errors.Is(err, ErrNoAudio) {
		t.Errorf("empty blob: err = %v", err)
	}
	if _, err := a.Analyze(context.Background(), testBlob, testTranscript[:2]); !errors.Is(err, ErrTooShort) {
		t.Errorf("short transcript: err = %v", err)
	}
	if fake.CallCount() != 0 {
		t.Error("no model call expected")
	}
}

func TestBaseMIME(t *testing.T) {
	tests := map[string]string{
		"audio/ogg;codecs=opus": "audio/ogg",
		"audio/wav":             "audio/wav",
		"audio/webm; codecs=x":  "audio/webm",
	}
	for in, want := range tests {
		if got := baseMIME(in); got != want {
			t.Errorf("baseMIME(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaults(t *testing.T) {
	a := New(gemini.NewFake(), Options{})
	if a.timeout != DefaultTimeout {
		t.Errorf("timeout = %v", a.timeout)
	}
	if got := a.Models(); len(got) != 2 || got[0] != "gemini-2.0-flash" {
		t.Errorf("models = %v", got)
	}
}
