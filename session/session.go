// Package session runs one recording session at a time: it starts
// recognition and recording together, turns final utterances into a table
// of contents, and finalizes everything into exportable artifacts.
package session

import (
	"context"
	"errors"
	"time"

	"earshot/analysis"
	"earshot/audio"
	"earshot/classifier"
	"earshot/credential"
	"earshot/export"
	"earshot/gemini"
	"earshot/recognizer"
	"earshot/toc"
)

var (
	// ErrUnsupportedEnvironment means no recognizer is available. Fatal to Start.
	ErrUnsupportedEnvironment = errors.New("speech recognition is not available")
	// ErrMissingCredential means no model API key is configured. Blocks Start.
	ErrMissingCredential = errors.New("model API key is not configured")
	// ErrPermissionDenied means the microphone was refused. The affected
	// driver stops; the session carries on with what still works.
	ErrPermissionDenied = recognizer.ErrPermissionDenied
	// ErrRecoverableStreamEnd marks an automatic recognizer restart.
	ErrRecoverableStreamEnd = errors.New("recognition stream ended unexpectedly; restarted")
	// ErrClassificationFailure is a per-utterance classifier error. It only
	// means "no topic change".
	ErrClassificationFailure = errors.New("topic classification failed")
	// ErrEmptyRecording means the recorder produced no audio.
	ErrEmptyRecording = errors.New("recording is empty")
	// ErrExportEndpointExhausted means every analysis model failed.
	ErrExportEndpointExhausted = errors.New("every analysis endpoint failed")

	ErrAlreadyActive    = errors.New("session already active")
	ErrNotActive        = errors.New("no active session")
	ErrBusy             = errors.New("session is finalizing")
	ErrNothingToAnalyze = errors.New("no finished session to analyze")
	ErrAnalyzing        = errors.New("analysis already running")
	ErrNoOutput         = errors.New("no output directory configured")
)

type State int

const (
	Idle State = iota
	Active
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Finalizing:
		return "finalizing"
	}
	return "unknown"
}

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}

// Notice is a user-visible message. Err, when set, is one of the package
// sentinels.
type Notice struct {
	Level   Level
	Err     error
	Message string
}

// Notifier receives everything the UI shows. Calls come from the session's
// goroutines and must not block for long.
type Notifier interface {
	StateChanged(s State)
	// Listening carries interim text. It is never persisted.
	Listening(interim string)
	Utterance(u recognizer.Utterance)
	Insight(v *classifier.Verdict)
	TOCAppended(e toc.Entry)
	// Alert fires on an automatic recognizer restart.
	Alert(attempt int)
	Notice(n Notice)
	Finalized(r *Result)
}

// NopNotifier ignores everything. Embed it to implement part of Notifier.
type NopNotifier struct{}

func (NopNotifier) StateChanged(State)             {}
func (NopNotifier) Listening(string)               {}
func (NopNotifier) Utterance(recognizer.Utterance) {}
func (NopNotifier) Insight(*classifier.Verdict)    {}
func (NopNotifier) TOCAppended(toc.Entry)          {}
func (NopNotifier) Alert(int)                      {}
func (NopNotifier) Notice(Notice)                  {}
func (NopNotifier) Finalized(*Result)              {}

// Archive is where finished sessions are kept. *archive.Store implements it.
type Archive interface {
	BeginSession(ctx context.Context, start time.Time, locale, format string) (string, error)
	AddUtterance(ctx context.Context, sessionID, text string, at time.Time) error
	AddTOCEntry(ctx context.Context, sessionID string, e toc.Entry) error
	EndSession(ctx context.Context, sessionID string, end time.Time, status, audioPath string, audioBytes int) error
	SaveReport(ctx context.Context, sessionID, model, html string) (string, error)
}

type ModelFactory func(ctx context.Context, apiKey string) (gemini.Model, error)

type Options struct {
	// Recognizers builds the recognition stream. Nil means the environment
	// has no recognizer.
	Recognizers recognizer.Factory
	// Audio is used for the recording. Nil records nothing.
	Audio       audio.Context
	Device      *audio.DeviceInfo
	Credentials credential.Store
	NewModel    ModelFactory
	Archive     Archive
	Files       export.FileStore

	Locale  string
	Formats []string
	Gain    int

	Classifier      classifier.Options
	Analysis        analysis.Options
	HistoryCapacity int
	DedupWindow     time.Duration
	Restart         recognizer.RestartPolicy

	// FlushTimeout bounds the wait for a pending microphone acquisition.
	FlushTimeout time.Duration
	Now          func() time.Time
}

func (o *Options) defaults() {
	if o.Locale == "" {
		o.Locale = "ko-KR"
	}
	if o.NewModel == nil {
		o.NewModel = func(ctx context.Context, key string) (gemini.Model, error) {
			return gemini.New(ctx, gemini.Options{APIKey: key})
		}
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 3 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
