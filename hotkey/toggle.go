package hotkey

import "time"

type Action int

const (
	// ActionToggle starts or stops recording.
	ActionToggle Action = iota
	// ActionBookmark marks the current moment of a running session.
	ActionBookmark
)

func (a Action) String() string {
	if a == ActionBookmark {
		return "bookmark"
	}
	return "toggle"
}

// Actions turns presses of one combo into actions: a tap toggles, a hold
// of at least longPress bookmarks. The action fires on release.
type Actions struct {
	ch   chan Action
	stop chan struct{}
}

func NewActions(hk Hotkey, longPress time.Duration) *Actions {
	a := &Actions{
		ch:   make(chan Action, 4),
		stop: make(chan struct{}),
	}
	go a.run(hk, longPress)
	return a
}

func (a *Actions) C() <-chan Action { return a.ch }

func (a *Actions) Close() {
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
}

func (a *Actions) run(hk Hotkey, longPress time.Duration) {
	defer close(a.ch)
	for {
		select {
		case <-a.stop:
			return
		case <-hk.Keydown():
		}
		pressed := time.Now()

		select {
		case <-a.stop:
			return
		case <-hk.Keyup():
		}

		act := ActionToggle
		if longPress > 0 && time.Since(pressed) >= longPress {
			act = ActionBookmark
		}
		select {
		case a.ch <- act:
		default:
		}
	}
}
