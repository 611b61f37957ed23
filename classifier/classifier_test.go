package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"earshot/gemini"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"bare", `{"a":1}`, []string{`{"a":1}`}},
		{"fenced", "```json\n{\"a\":1}\n```", []string{`{"a":1}`}},
		{"prose around", `Sure! Here it is: {"a":{"b":2}} hope that helps`, []string{`{"a":{"b":2}}`}},
		{"brace inside string", `{"a":"x}y{"}`, []string{`{"a":"x}y{"}`}},
		{"escaped quote", `{"a":"say \"}\" now"}`, []string{`{"a":"say \"}\" now"}`}},
		{"two objects", `{"a":1} and {"b":2}`, []string{`{"a":1}`, `{"b":2}`}},
		{"truncated", `result: {"a":1, "b":`, []string{`{"a":1, "b":`}},
		{"none", `I cannot help with that.`, nil},
		{"stray closer", `} {"a":1}`, []string{`{"a":1}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.in)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Extract(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		topic     string
		changed   bool
		wantError bool
	}{
		{"plain", `{"currentTopic":"날씨","isTopicChanged":true}`, "날씨", true, false},
		{"fenced", "```json\n{\"currentTopic\": \"날씨\", \"isTopicChanged\": true}\n```", "날씨", true, false},
		{"null topic", `{"currentTopic":null,"isTopicChanged":false}`, "", false, false},
		{"trailing comma repaired", `{"currentTopic":"여행","isTopicChanged":true,}`, "여행", true, false},
		{"single quotes repaired", `{'currentTopic': '여행', 'isTopicChanged': false}`, "여행", false, false},
		{"skips unrelated object", `{"note":"x"} {"currentTopic":"음식","isTopicChanged":true}`, "음식", true, false},
		{"no json", `죄송합니다, 판단할 수 없습니다.`, "", false, true},
		{"wrong type", `{"currentTopic":"a","isTopicChanged":"maybe"}`, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.in)
			if tt.wantError {
				if err == nil {
					t.Fatalf("expected error, got %+v", v)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if v.Topic() != tt.topic || v.Changed() != tt.changed {
				t.Errorf("topic=%q changed=%v, want %q %v", v.Topic(), v.Changed(), tt.topic, tt.changed)
			}
		})
	}
}

func TestParseNoJSONSentinel(t *testing.T) {
	if _, err := Parse("nothing here"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("err = %v, want ErrNoJSON", err)
	}
}

func TestVerdictChangedNeedsTopic(t *testing.T) {
	blank := "  "
	v := &Verdict{CurrentTopic: &blank, IsTopicChanged: true}
	if v.Changed() {
		t.Error("blank topic counted as change")
	}
	var nilVerdict *Verdict
	if nilVerdict.Changed() {
		t.Error("nil verdict counted as change")
	}
}

func TestClassifySuccess(t *testing.T) {
	fake := gemini.NewFake().On(DefaultModel, gemini.FakeResponse{
		Text: "```json\n{\"currentTopic\":\"날씨\",\"isTopicChanged\":true,\"mood\":\"neutral\"}\n```",
	})
	c := New(fake, Options{})

	r := c.Classify(context.Background(), "오늘 날씨 어때", nil)
	if !r.OK() {
		t.Fatalf("result = %+v", r)
	}
	if r.Verdict.Topic() != "날씨" || r.Verdict.Mood != "neutral" {
		t.Errorf("verdict = %+v", r.Verdict)
	}

	calls := fake.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Parts[0].Text, "오늘 날씨 어때") {
		t.Errorf("calls = %+v", calls)
	}
	if !strings.Contains(calls[0].Parts[0].Text, "(없음)") {
		t.Error("prompt should mark empty context")
	}
}

func TestClassifyTrimsContext(t *testing.T) {
	fake := gemini.NewFake().On(DefaultModel, gemini.FakeResponse{Text: `{"currentTopic":null,"isTopicChanged":false}`})
	c := New(fake, Options{Window: 2})

	c.Classify(context.Background(), "now", []string{"one", "two", "three"})
	prompt := fake.Calls()[0].Parts[0].Text
	if strings.Contains(prompt, "one") || !strings.Contains(prompt, "two | three") {
		t.Errorf("prompt context not trimmed:\n%s", prompt)
	}
}

func TestClassifyFailuresYieldNoVerdict(t *testing.T) {
	tests := []struct {
		name string
		resp gemini.FakeResponse
	}{
		{"network", gemini.FakeResponse{Err: errors.New("dial tcp: connection refused")}},
		{"no candidates", gemini.FakeResponse{Err: gemini.ErrNoCandidates}},
		{"no json", gemini.FakeResponse{Text: "잘 모르겠어요"}},
		{"garbage", gemini.FakeResponse{Text: "{{{{"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := gemini.NewFake().On(DefaultModel, tt.resp)
			r := New(fake, Options{}).Classify(context.Background(), "x", nil)
			if r.OK() || r.Verdict != nil {
				t.Fatalf("expected no verdict, got %+v", r)
			}
			if !errors.Is(r.Err, ErrNoVerdict) {
				t.Errorf("err = %v, want ErrNoVerdict", r.Err)
			}
		})
	}
}

func TestClassifyTimeout(t *testing.T) {
	fake := gemini.NewFake().On(DefaultModel, gemini.FakeResponse{Text: `{"isTopicChanged":false}`, Delay: time.Second})
	c := New(fake, Options{Timeout: 30 * time.Millisecond})

	start := time.Now()
	r := c.Classify(context.Background(), "x", nil)
	if r.OK() {
		t.Fatal("slow call produced a verdict")
	}
	if !errors.Is(r.Err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", r.Err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("timeout not enforced")
	}
}

func TestSequencerReordersCompletions(t *testing.T) {
	s := NewSequencer[string]()
	t0, t1, t2 := s.Ticket(), s.Ticket(), s.Ticket()

	if got := s.Done(t2, "c"); len(got) != 0 {
		t.Fatalf("released early: %v", got)
	}
	if got := s.Done(t1, "b"); len(got) != 0 {
		t.Fatalf("released early: %v", got)
	}
	if s.Outstanding() != 3 {
		t.Errorf("Outstanding = %d, want 3", s.Outstanding())
	}
	got := s.Done(t0, "a")
	if strings.Join(got, "") != "abc" {
		t.Errorf("released %v, want [a b c]", got)
	}
	if s.Outstanding() != 0 {
		t.Errorf("Outstanding = %d, want 0", s.Outstanding())
	}
	if got := s.Done(t0, "dup"); got != nil {
		t.Errorf("stale ticket released %v", got)
	}
}
