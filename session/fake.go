package session

import (
	"sync"

	"earshot/classifier"
	"earshot/recognizer"
	"earshot/toc"
)

// FakeNotifier records every notification. Finals is signalled once per
// finalized session.
type FakeNotifier struct {
	Finals chan *Result
	// Entries receives every appended table-of-contents entry.
	Entries chan toc.Entry

	mu         sync.Mutex
	states     []State
	interims   []string
	utterances []string
	insights   []*classifier.Verdict
	alerts     []int
	notices    []Notice
}

func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{
		Finals:  make(chan *Result, 8),
		Entries: make(chan toc.Entry, 64),
	}
}

func (f *FakeNotifier) StateChanged(s State) {
	f.mu.Lock()
	f.states = append(f.states, s)
	f.mu.Unlock()
}

func (f *FakeNotifier) Listening(interim string) {
	f.mu.Lock()
	f.interims = append(f.interims, interim)
	f.mu.Unlock()
}

func (f *FakeNotifier) Utterance(u recognizer.Utterance) {
	f.mu.Lock()
	f.utterances = append(f.utterances, u.Text)
	f.mu.Unlock()
}

func (f *FakeNotifier) Insight(v *classifier.Verdict) {
	f.mu.Lock()
	f.insights = append(f.insights, v)
	f.mu.Unlock()
}

func (f *FakeNotifier) TOCAppended(e toc.Entry) {
	select {
	case f.Entries <- e:
	default:
	}
}

func (f *FakeNotifier) Alert(attempt int) {
	f.mu.Lock()
	f.alerts = append(f.alerts, attempt)
	f.mu.Unlock()
}

func (f *FakeNotifier) Notice(n Notice) {
	f.mu.Lock()
	f.notices = append(f.notices, n)
	f.mu.Unlock()
}

func (f *FakeNotifier) Finalized(r *Result) {
	select {
	case f.Finals <- r:
	default:
	}
}

func (f *FakeNotifier) States() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.states...)
}

func (f *FakeNotifier) Interims() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.interims...)
}

func (f *FakeNotifier) Utterances() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.utterances...)
}

func (f *FakeNotifier) Insights() []*classifier.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*classifier.Verdict(nil), f.insights...)
}

func (f *FakeNotifier) Alerts() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.alerts...)
}

func (f *FakeNotifier) Notices() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notice(nil), f.notices...)
}
