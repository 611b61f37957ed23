package recognizer

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"earshot/audio"

	"nhooyr.io/websocket"
)

type dgServer struct {
	mu       sync.Mutex
	auth     string
	query    map[string]string
	binaries int
	closed   bool
}

func newDGServer(t *testing.T, messages []string) (*httptest.Server, *dgServer) {
	t.Helper()
	state := &dgServer{query: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state.mu.Lock()
		state.auth = r.Header.Get("Authorization")
		for k := range r.URL.Query() {
			state.query[k] = r.URL.Query().Get(k)
		}
		state.mu.Unlock()

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		for _, m := range messages {
			if err := c.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				state.mu.Lock()
				state.binaries++
				state.mu.Unlock()
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				state.mu.Lock()
				state.closed = true
				state.mu.Unlock()
				c.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, state
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextRaw(t *testing.T, r Recognizer) Event {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for recognizer event")
	}
	return Event{}
}

func TestDeepgramStreamsResults(t *testing.T) {
	srv, state := newDGServer(t, []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"안녕"}]}}`,
		`{"type":"Metadata"}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"안녕하세요 "}]}}`,
		`{"type":"Results","speech_final":true,"channel":{"alternatives":[{"transcript":"반갑습니다"}]}}`,
	})

	actx := audio.NewFakeContextPCM(make([]byte, 32000), false)
	dg := NewDeepgram(DeepgramConfig{
		APIKey:   "dg-key",
		Endpoint: wsURL(srv),
		Locale:   "ko-KR",
		Audio:    actx,
	})
	if err := dg.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := dg.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	if ev := nextRaw(t, dg); ev.Type != EventStart {
		t.Fatalf("first event = %v, want start", ev.Type)
	}

	ev := nextRaw(t, dg)
	if ev.Type != EventResult || ev.ResultIndex != 0 || ev.Results[0].IsFinal || ev.Results[0].Transcript != "안녕" {
		t.Fatalf("interim event = %+v", ev)
	}
	ev = nextRaw(t, dg)
	if finals, _ := Partition(ev); len(finals) != 1 || finals[0] != "안녕하세요" {
		t.Fatalf("first final = %+v", ev)
	}
	ev = nextRaw(t, dg)
	if ev.ResultIndex != 1 || len(ev.Results) != 2 {
		t.Fatalf("second final should be cumulative: %+v", ev)
	}
	if finals, _ := Partition(ev); len(finals) != 1 || finals[0] != "반갑습니다" {
		t.Fatalf("second final = %+v", ev)
	}

	dg.Stop()
	if ev := nextRaw(t, dg); ev.Type != EventEnd {
		t.Fatalf("after Stop got %v, want end", ev.Type)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.auth != "Token dg-key" {
		t.Errorf("Authorization = %q", state.auth)
	}
	want := map[string]string{"model": "nova-3", "encoding": "linear16", "sample_rate": "16000", "channels": "1", "language": "ko-KR", "interim_results": "true"}
	for k, v := range want {
		if state.query[k] != v {
			t.Errorf("query %s = %q, want %q", k, state.query[k], v)
		}
	}
	if !state.closed {
		t.Error("server never saw CloseStream")
	}
	caps := actx.Captures()
	if len(caps) != 1 || !caps[0].Closed() {
		t.Error("capture should be closed after the stream ends")
	}
}

func TestDeepgramPermissionDenied(t *testing.T) {
	actx := audio.NewFakeContextPCM(nil, false)
	actx.Deny(audio.ErrPermissionDenied)
	dg := NewDeepgram(DeepgramConfig{APIKey: "k", Endpoint: "ws://127.0.0.1:1", Audio: actx})
	if err := dg.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ev := nextRaw(t, dg)
	if ev.Type != EventError || ev.Code != CodeNotAllowed {
		t.Fatalf("got %+v, want not-allowed error", ev)
	}
	if ev := nextRaw(t, dg); ev.Type != EventEnd {
		t.Fatalf("got %v, want end", ev.Type)
	}
}

func TestDeepgramDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	actx := audio.NewFakeContextPCM(nil, false)
	dg := NewDeepgram(DeepgramConfig{APIKey: "k", Endpoint: wsURL(srv), Audio: actx})
	if err := dg.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ev := nextRaw(t, dg)
	if ev.Type != EventError || ev.Code != CodeNetwork {
		t.Fatalf("got %+v, want network error", ev)
	}
	if ev := nextRaw(t, dg); ev.Type != EventEnd {
		t.Fatalf("got %v, want end", ev.Type)
	}
	caps := actx.Captures()
	if len(caps) != 1 || !caps[0].Closed() {
		t.Error("capture should be released after a failed dial")
	}
	// The stream slot is free again.
	if err := dg.Start(); err != nil {
		t.Errorf("restart: %v", err)
	}
	dg.Stop()
}

func TestDeepgramFactory(t *testing.T) {
	if _, err := DeepgramFactory(DeepgramConfig{})(); err == nil {
		t.Error("expected missing key error")
	}
	f := DeepgramFactory(DeepgramConfig{APIKey: "k", Audio: audio.NewFakeContextPCM(nil, false)})
	r, err := f()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.(*Deepgram); !ok {
		t.Errorf("factory returned %T", r)
	}
}
