// Package recognizer wraps a continuous speech recognition stream. A
// Recognizer only knows how to start, stop and report raw events; Driver
// turns those into utterances and keeps the stream alive.
package recognizer

import (
	"errors"
	"strings"
)

var (
	ErrPermissionDenied  = errors.New("recognizer: microphone permission denied")
	ErrRestartsExhausted = errors.New("recognizer: restart attempts exhausted")
	ErrAlreadyRunning    = errors.New("recognizer: stream already running")
)

type ErrorCode string

const (
	CodeNotAllowed   ErrorCode = "not-allowed"
	CodeNetwork      ErrorCode = "network"
	CodeNoSpeech     ErrorCode = "no-speech"
	CodeAudioCapture ErrorCode = "audio-capture"
	CodeAborted      ErrorCode = "aborted"
)

type EventType int

const (
	EventStart EventType = iota
	EventResult
	EventError
	EventEnd
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

type Result struct {
	Transcript string
	IsFinal    bool
}

// Event is one raw stream event. For EventResult, Results is the stream's
// cumulative result list and ResultIndex the first entry that changed.
type Event struct {
	Type        EventType
	ResultIndex int
	Results     []Result
	Code        ErrorCode
	Err         error
}

// Recognizer is a restartable recognition stream. Start begins a stream
// and returns without waiting for it; the stream reports EventStart, then
// results, and always finishes with EventEnd. Events stays open for the
// life of the Recognizer.
type Recognizer interface {
	Start() error
	Stop()
	Events() <-chan Event
}

// Factory builds a fresh Recognizer for one session.
type Factory func() (Recognizer, error)

// Partition splits the changed part of a result list into final segments
// and the concatenated interim text.
func Partition(ev Event) (finals []string, interim string) {
	start := max(ev.ResultIndex, 0)
	var pending []string
	for i := start; i < len(ev.Results); i++ {
		r := ev.Results[i]
		text := strings.TrimSpace(r.Transcript)
		if text == "" {
			continue
		}
		if r.IsFinal {
			finals = append(finals, text)
		} else {
			pending = append(pending, text)
		}
	}
	return finals, strings.Join(pending, " ")
}
