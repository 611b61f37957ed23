// Package history holds the per-session utterance state: the repeat
// filter in front of the classifier and the bounded context buffer.
package history

import (
	"sync"
	"time"
)

const DefaultWindow = 2000 * time.Millisecond

// Filter drops an utterance that repeats the last accepted one within a
// window. Recognizers re-emit the same final phrase across restarts.
type Filter struct {
	mu       sync.Mutex
	window   time.Duration
	last     string
	lastAt   time.Time
	accepted bool
}

func NewFilter(window time.Duration) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Filter{window: window}
}

// ShouldProcess reports false iff text equals the previous accepted text
// and now is less than the window after it. Accepting updates the state.
func (f *Filter) ShouldProcess(text string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.accepted && text == f.last && now.Sub(f.lastAt) < f.window {
		return false
	}
	f.last = text
	f.lastAt = now
	f.accepted = true
	return true
}

func (f *Filter) Reset() {
	f.mu.Lock()
	f.last, f.lastAt, f.accepted = "", time.Time{}, false
	f.mu.Unlock()
}
