package recognizer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"earshot/log"
)

type DriverEventType int

const (
	DriverStarted DriverEventType = iota
	DriverInterim
	DriverFinal
	DriverEndedUnexpectedly
	DriverPermissionDenied
	DriverFailed
)

func (t DriverEventType) String() string {
	switch t {
	case DriverStarted:
		return "started"
	case DriverInterim:
		return "interim"
	case DriverFinal:
		return "finalResult"
	case DriverEndedUnexpectedly:
		return "endedUnexpectedly"
	case DriverPermissionDenied:
		return "permissionDenied"
	case DriverFailed:
		return "failed"
	}
	return "unknown"
}

type Utterance struct {
	Text    string
	At      time.Time
	IsFinal bool
}

type DriverEvent struct {
	Type      DriverEventType
	Utterance Utterance
	// Attempt is the consecutive restart count for DriverEndedUnexpectedly.
	Attempt int
	Err     error
}

// RestartPolicy bounds automatic restarts. A stream that ends within
// Window of starting, without producing a final result, counts toward
// MaxAttempts; a longer-lived or productive stream resets the count.
type RestartPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{MaxAttempts: 3, Window: 5 * time.Second}
}

// Driver runs one recognition stream for a session and restarts it when it
// ends on its own. Events is closed when the driver gives up or is halted.
type Driver struct {
	rec    Recognizer
	policy RestartPolicy
	now    func() time.Time

	events chan DriverEvent
	done   chan struct{}

	mu     sync.Mutex
	halted bool
	begun  bool

	// owned by run
	attempts    int
	streamStart time.Time
	productive  bool
	denied      bool
	lastErr     error
}

func NewDriver(rec Recognizer, policy RestartPolicy) *Driver {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRestartPolicy().MaxAttempts
	}
	if policy.Window <= 0 {
		policy.Window = DefaultRestartPolicy().Window
	}
	return &Driver{
		rec:    rec,
		policy: policy,
		now:    time.Now,
		events: make(chan DriverEvent, 64),
		done:   make(chan struct{}),
	}
}

func (d *Driver) Events() <-chan DriverEvent { return d.events }

func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted || d.begun {
		return ErrAlreadyRunning
	}
	if err := d.rec.Start(); err != nil {
		return err
	}
	d.begun = true
	d.streamStart = d.now()
	go d.run()
	return nil
}

// Halt stops the stream and rules out any further restart. It does not
// wait for the stream to confirm the stop.
func (d *Driver) Halt() {
	d.mu.Lock()
	if d.halted {
		d.mu.Unlock()
		return
	}
	d.halted = true
	begun := d.begun
	d.mu.Unlock()

	close(d.done)
	if begun {
		d.rec.Stop()
	}
}

func (d *Driver) Halted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halted
}

func (d *Driver) emit(ev DriverEvent) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

func (d *Driver) run() {
	defer close(d.events)
	raw := d.rec.Events()
	for {
		select {
		case <-d.done:
			return
		case ev, ok := <-raw:
			if !ok {
				return
			}
			if !d.handle(ev) {
				return
			}
		}
	}
}

func (d *Driver) handle(ev Event) bool {
	switch ev.Type {
	case EventStart:
		d.emit(DriverEvent{Type: DriverStarted, Attempt: d.attempts})

	case EventResult:
		finals, interim := Partition(ev)
		now := d.now()
		for _, text := range finals {
			d.productive = true
			d.emit(DriverEvent{Type: DriverFinal, Utterance: Utterance{Text: text, At: now, IsFinal: true}})
		}
		if interim != "" {
			d.emit(DriverEvent{Type: DriverInterim, Utterance: Utterance{Text: interim, At: now}})
		}

	case EventError:
		switch ev.Code {
		case CodeNotAllowed:
			d.denied = true
			err := ErrPermissionDenied
			if ev.Err != nil {
				err = fmt.Errorf("%w: %v", ErrPermissionDenied, ev.Err)
			}
			d.emit(DriverEvent{Type: DriverPermissionDenied, Err: err})
		case CodeNoSpeech, CodeAborted:
			log.Infof("recognizer: %s", ev.Code)
		default:
			d.lastErr = ev.Err
			if d.lastErr == nil {
				d.lastErr = errors.New(string(ev.Code))
			}
			log.Warnf("recognizer error (%s): %v", ev.Code, ev.Err)
		}

	case EventEnd:
		return d.restart()
	}
	return true
}

// restart decides what an end-of-stream means and reports whether the
// driver keeps running. The decision and the new Start happen under d.mu so
// Halt cannot slip between them; the event goes out after unlocking and
// waits for the reader rather than being dropped.
func (d *Driver) restart() bool {
	ev, keep, ok := d.decideRestart()
	if ok {
		d.emit(ev)
	}
	return keep
}

func (d *Driver) decideRestart() (ev DriverEvent, keep, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.halted {
		return DriverEvent{}, false, false
	}
	if d.denied {
		log.Warn("recognizer: stream ended after permission denial; not restarting")
		return DriverEvent{}, false, false
	}

	now := d.now()
	if d.productive || now.Sub(d.streamStart) >= d.policy.Window {
		d.attempts = 0
	}
	d.attempts++
	cause := d.lastErr
	d.lastErr = nil
	d.productive = false

	if d.attempts > d.policy.MaxAttempts {
		err := ErrRestartsExhausted
		if cause != nil {
			err = fmt.Errorf("%w: %w", ErrRestartsExhausted, cause)
		}
		return failure(err), false, true
	}

	log.RecognizerRestart(d.attempts, cause)
	if err := d.rec.Start(); err != nil {
		return failure(fmt.Errorf("restart recognizer: %w", err)), false, true
	}
	d.streamStart = now
	return DriverEvent{Type: DriverEndedUnexpectedly, Attempt: d.attempts, Err: cause}, true, true
}

func failure(err error) DriverEvent {
	log.Errorf("recognizer: giving up: %v", err)
	return DriverEvent{Type: DriverFailed, Err: err}
}
