package gemini

import (
	"context"
	"sync"
	"time"
)

type FakeResponse struct {
	Text  string
	Err   error
	Delay time.Duration
}

type FakeCall struct {
	Model string
	Parts []Part
}

// FakeModel answers Generate from per-model scripts. The last scripted
// response for a model repeats. Respond, when set, overrides scripts.
type FakeModel struct {
	Respond func(model string, parts []Part) FakeResponse

	mu        sync.Mutex
	responses map[string][]FakeResponse
	calls     []FakeCall
}

func NewFake() *FakeModel {
	return &FakeModel{responses: map[string][]FakeResponse{}}
}

func (f *FakeModel) On(model string, rs ...FakeResponse) *FakeModel {
	f.mu.Lock()
	f.responses[model] = append(f.responses[model], rs...)
	f.mu.Unlock()
	return f
}

func (f *FakeModel) Generate(ctx context.Context, model string, parts []Part) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Model: model, Parts: parts})
	var r FakeResponse
	if f.Respond != nil {
		f.mu.Unlock()
		r = f.Respond(model, parts)
	} else {
		q := f.responses[model]
		switch len(q) {
		case 0:
			r = FakeResponse{Err: ErrNoCandidates}
		case 1:
			r = q[0]
		default:
			r = q[0]
			f.responses[model] = q[1:]
		}
		f.mu.Unlock()
	}

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.Err != nil {
		return "", r.Err
	}
	return r.Text, nil
}

func (f *FakeModel) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeModel) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
