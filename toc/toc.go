// Package toc keeps the time-stamped table of contents of a recording
// session: session start, topic changes and bookmarks, each stamped with
// its offset from the session start.
package toc

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrClosed = errors.New("toc: log is closed")

type Kind int

const (
	SessionStart Kind = iota
	Topic
	Bookmark
)

func (k Kind) String() string {
	switch k {
	case SessionStart:
		return "start"
	case Topic:
		return "topic"
	case Bookmark:
		return "bookmark"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Icon() string {
	switch k {
	case SessionStart:
		return "🎙️"
	case Topic:
		return "📌"
	case Bookmark:
		return "🔖"
	}
	return "•"
}

func (k Kind) Label() string {
	switch k {
	case SessionStart:
		return "시작"
	case Topic:
		return "주제"
	case Bookmark:
		return "북마크"
	}
	return k.String()
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "start":
		return SessionStart, nil
	case "topic":
		return Topic, nil
	case "bookmark":
		return Bookmark, nil
	}
	return 0, fmt.Errorf("toc: unknown kind %q", s)
}

type Entry struct {
	Offset  time.Duration
	Kind    Kind
	Content string
}

func (e Entry) RelativeTime() string {
	return FormatRelative(e.Offset)
}

// String renders the entry as "MM:SS | icon label: content".
func (e Entry) String() string {
	return fmt.Sprintf("%s | %s %s: %s", e.RelativeTime(), e.Kind.Icon(), e.Kind.Label(), e.Content)
}

// FormatRelative renders d as zero-padded MM:SS. Minutes are not wrapped
// into hours, so long sessions read 75:03.
func FormatRelative(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Log is an append-only, per-session table of contents. Offsets never
// decrease: an entry stamped earlier than its predecessor takes the
// predecessor's offset.
type Log struct {
	mu      sync.Mutex
	start   time.Time
	entries []Entry
	closed  bool
}

func NewLog(start time.Time) *Log {
	return &Log{start: start}
}

func (l *Log) Start() time.Time {
	return l.start
}

func (l *Log) Append(at time.Time, kind Kind, content string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Entry{}, ErrClosed
	}

	off := at.Sub(l.start)
	if off < 0 {
		off = 0
	}
	if n := len(l.entries); n > 0 && off < l.entries[n-1].Offset {
		off = l.entries[n-1].Offset
	}
	e := Entry{Offset: off, Kind: kind, Content: content}
	l.entries = append(l.entries, e)
	return e, nil
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Close stops further appends. Entries stay readable.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// Snapshot is an immutable copy of a log, handed to exporters.
type Snapshot struct {
	Start   time.Time
	Entries []Entry
}

func (l *Log) Snapshot() Snapshot {
	return Snapshot{Start: l.start, Entries: l.Entries()}
}

// Lines renders every entry in order.
func (s Snapshot) Lines() []string {
	out := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.String()
	}
	return out
}

func (s Snapshot) Empty() bool {
	return len(s.Entries) == 0
}
