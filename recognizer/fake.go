package recognizer

import "sync"

// Fake is a scripted Recognizer. Sim* methods inject stream events.
type Fake struct {
	// StartErr, when set, fails every Start.
	StartErr error

	mu      sync.Mutex
	events  chan Event
	running bool
	starts  int
	stops   int
	finals  []Result
}

func NewFake() *Fake {
	return &Fake{events: make(chan Event, 256)}
}

func (f *Fake) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.StartErr != nil {
		return f.StartErr
	}
	if f.running {
		return ErrAlreadyRunning
	}
	f.running = true
	f.finals = nil
	f.events <- Event{Type: EventStart}
	return nil
}

func (f *Fake) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if !f.running {
		return
	}
	f.running = false
	f.events <- Event{Type: EventEnd}
}

func (f *Fake) Events() <-chan Event { return f.events }

func (f *Fake) SimInterim(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := append(append([]Result(nil), f.finals...), Result{Transcript: text})
	f.events <- Event{Type: EventResult, ResultIndex: len(f.finals), Results: results}
}

func (f *Fake) SimFinal(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.finals)
	f.finals = append(f.finals, Result{Transcript: text, IsFinal: true})
	f.events <- Event{Type: EventResult, ResultIndex: idx, Results: append([]Result(nil), f.finals...)}
}

func (f *Fake) SimError(code ErrorCode, err error) {
	f.events <- Event{Type: EventError, Code: code, Err: err}
}

// SimEnd ends the current stream as if the service dropped it.
func (f *Fake) SimEnd() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.events <- Event{Type: EventEnd}
}

func (f *Fake) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *Fake) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *Fake) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}
