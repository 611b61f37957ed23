package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"earshot/audio"
	"earshot/classifier"
	"earshot/credential"
	"earshot/history"
	"earshot/log"
	"earshot/recognizer"
	"earshot/recorder"
	"earshot/toc"
)

// StartLabel is the content of the entry every session begins with.
const StartLabel = "녹음 시작"

const (
	StatusComplete = "complete"
	StatusEmpty    = "empty"
	StatusFailed   = "failed"
)

// Controller owns the session lifecycle. At most one session is active;
// the last finished one stays around for analysis and export until the
// next Start or Reset.
type Controller struct {
	opts   Options
	notify Notifier

	mu        sync.Mutex
	state     State
	cur       *run
	last      *Result
	analyzing bool
}

// run is everything that lives exactly as long as one session.
type run struct {
	id     string
	start  time.Time
	ctx    context.Context
	cancel context.CancelFunc

	driver *recognizer.Driver
	rec    *recorder.Recorder
	toc    *toc.Log
	filter *history.Filter
	buffer *history.Buffer
	cls    *classifier.Client

	results   chan classified
	loopDone  chan struct{}
	finalized chan struct{}

	// owned by loop
	seq        *classifier.Sequencer[classified]
	transcript []string
	lastTopic  string
}

type classified struct {
	ticket    uint64
	utterance string
	res       classifier.Result
}

func New(opts Options, n Notifier) *Controller {
	opts.defaults()
	if n == nil {
		n = NopNotifier{}
	}
	return &Controller{opts: opts, notify: n}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Last returns the most recently finalized session, or nil.
func (c *Controller) Last() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	r := *c.last
	return &r
}

func (c *Controller) Analyzing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analyzing
}

// Start begins a session: recognition and recording start together and
// the table of contents opens with a session-start entry.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Active:
		c.mu.Unlock()
		return ErrAlreadyActive
	case Finalizing:
		c.mu.Unlock()
		return ErrBusy
	}
	r, notices, err := c.begin(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = Active
	c.cur = r
	c.last = nil
	c.mu.Unlock()

	go c.loop(r)

	c.notify.StateChanged(Active)
	for _, e := range r.toc.Entries() {
		c.notify.TOCAppended(e)
	}
	for _, n := range notices {
		c.notify.Notice(n)
	}
	return nil
}

func (c *Controller) begin(ctx context.Context) (*run, []Notice, error) {
	if c.opts.Recognizers == nil {
		return nil, nil, ErrUnsupportedEnvironment
	}
	key, err := credential.Resolve(ctx, c.opts.Credentials)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMissingCredential, err)
	}
	model, err := c.opts.NewModel(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create model client: %w", err)
	}
	rec, err := c.opts.Recognizers()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnsupportedEnvironment, err)
	}

	var notices []Notice
	start := c.opts.Now()
	r := &run{
		start:     start,
		toc:       toc.NewLog(start),
		filter:    history.NewFilter(c.opts.DedupWindow),
		buffer:    history.NewBuffer(c.opts.HistoryCapacity),
		cls:       classifier.New(model, c.opts.Classifier),
		seq:       classifier.NewSequencer[classified](),
		results:   make(chan classified, 16),
		loopDone:  make(chan struct{}),
		finalized: make(chan struct{}),
	}
	r.toc.Append(start, toc.SessionStart, StartLabel)

	r.driver = recognizer.NewDriver(rec, c.opts.Restart)
	if err := r.driver.Start(); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrUnsupportedEnvironment, err)
	}

	format := ""
	if c.opts.Audio == nil {
		notices = append(notices, Notice{Level: LevelWarn, Message: "no audio backend; recording is off for this session"})
	} else {
		rr, err := recorder.New(c.opts.Audio, recorder.Options{Device: c.opts.Device, Formats: c.opts.Formats, Gain: c.opts.Gain})
		if err != nil {
			notices = append(notices, Notice{Level: LevelWarn, Message: fmt.Sprintf("recording disabled: %v", err)})
		} else {
			r.rec = rr
			format = rr.Format().MIMEType
			rr.Start()
		}
	}

	// Archive writes outlive the caller's context.
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	if c.opts.Archive != nil {
		id, err := c.opts.Archive.BeginSession(r.ctx, start, c.opts.Locale, format)
		if err != nil {
			log.Warnf("session: archive begin: %v", err)
		} else {
			r.id = id
			if e := r.toc.Entries(); len(e) > 0 {
				c.archiveEntry(r, e[0])
			}
		}
	}
	if r.id == "" {
		r.id = uuid.NewString()
	}

	device := ""
	if c.opts.Device != nil {
		device = c.opts.Device.Name
	}
	log.SessionStart(r.id, c.opts.Locale, format, device)
	return r, notices, nil
}

// live reports whether r is still the active session.
func (c *Controller) live(r *run) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Active && c.cur == r
}

func (c *Controller) loop(r *run) {
	defer close(r.loopDone)

	events := r.driver.Events()
	var failures <-chan error
	if r.rec != nil {
		failures = r.rec.Failures()
	}

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.driverEvent(r, ev)
		case err := <-failures:
			failures = nil
			c.recordingFailed(err)
		case cr := <-r.results:
			for _, done := range r.seq.Done(cr.ticket, cr) {
				c.applyVerdict(r, done)
			}
		}
	}
}

func (c *Controller) driverEvent(r *run, ev recognizer.DriverEvent) {
	switch ev.Type {
	case recognizer.DriverInterim:
		if c.live(r) {
			c.notify.Listening(ev.Utterance.Text)
		}
	case recognizer.DriverFinal:
		c.utterance(r, ev.Utterance)
	case recognizer.DriverEndedUnexpectedly:
		c.notify.Alert(ev.Attempt)
		c.notify.Notice(Notice{
			Level:   LevelWarn,
			Err:     ErrRecoverableStreamEnd,
			Message: fmt.Sprintf("recognition restarted (attempt %d)", ev.Attempt),
		})
	case recognizer.DriverPermissionDenied:
		c.notify.Notice(Notice{
			Level:   LevelError,
			Err:     ErrPermissionDenied,
			Message: "speech recognition lost microphone access; recording continues",
		})
	case recognizer.DriverFailed:
		log.Errorf("session: recognition failed: %v", ev.Err)
		c.notify.Notice(Notice{Level: LevelError, Err: ev.Err, Message: "speech recognition stopped; finishing session"})
		if _, err := c.Stop(); err != nil {
			log.Warnf("session: stop after recognition failure: %v", err)
		}
	}
}

func (c *Controller) recordingFailed(err error) {
	n := Notice{Level: LevelWarn, Err: err, Message: "recording unavailable; transcription continues"}
	if errors.Is(err, audio.ErrPermissionDenied) {
		n.Level = LevelError
		n.Err = ErrPermissionDenied
	}
	c.notify.Notice(n)
}

func (c *Controller) utterance(r *run, u recognizer.Utterance) {
	if !c.live(r) {
		return
	}
	if !r.filter.ShouldProcess(u.Text, c.opts.Now()) {
		log.Infof("session: dropped duplicate %q", u.Text)
		return
	}

	recent := r.buffer.Recent(r.cls.Window())
	r.buffer.Push(u.Text)
	r.transcript = append(r.transcript, u.Text)
	log.Utterance(u.Text)
	if c.opts.Archive != nil {
		if err := c.opts.Archive.AddUtterance(r.ctx, r.id, u.Text, u.At); err != nil {
			log.Warnf("session: archive utterance: %v", err)
		}
	}
	c.notify.Utterance(u)

	ticket := r.seq.Ticket()
	go func() {
		res := r.cls.Classify(r.ctx, u.Text, recent)
		select {
		case r.results <- classified{ticket: ticket, utterance: u.Text, res: res}:
		case <-r.ctx.Done():
		}
	}()
}

// applyVerdict runs in utterance order. A failed classification means no
// topic change and nothing else.
func (c *Controller) applyVerdict(r *run, cr classified) {
	if !c.live(r) {
		return
	}
	if !cr.res.OK() {
		log.Warnf("session: %v for %q: %v", ErrClassificationFailure, cr.utterance, cr.res.Err)
		return
	}
	v := cr.res.Verdict
	c.notify.Insight(v)
	if !v.Changed() {
		return
	}
	topic := v.Topic()
	if topic == r.lastTopic {
		return
	}
	e, err := r.toc.Append(c.opts.Now(), toc.Topic, topic)
	if err != nil {
		return
	}
	r.lastTopic = topic
	log.TopicChange(topic, e.RelativeTime())
	c.archiveEntry(r, e)
	c.notify.TOCAppended(e)
}

func (c *Controller) archiveEntry(r *run, e toc.Entry) {
	if c.opts.Archive == nil {
		return
	}
	if err := c.opts.Archive.AddTOCEntry(r.ctx, r.id, e); err != nil {
		log.Warnf("session: archive toc entry: %v", err)
	}
}

// Bookmark marks the current moment. An empty label is numbered.
func (c *Controller) Bookmark(label string) (toc.Entry, error) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return toc.Entry{}, ErrNotActive
	}
	r := c.cur
	c.mu.Unlock()

	if label == "" {
		label = fmt.Sprintf("#%d", r.toc.Count(toc.Bookmark)+1)
	}
	e, err := r.toc.Append(c.opts.Now(), toc.Bookmark, label)
	if err != nil {
		return toc.Entry{}, ErrNotActive
	}
	c.archiveEntry(r, e)
	c.notify.TOCAppended(e)
	return e, nil
}

// Stop moves the session to Finalizing and returns at once. The returned
// channel closes when the session is back to Idle.
func (c *Controller) Stop() (<-chan struct{}, error) {
	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		return nil, ErrNotActive
	case Finalizing:
		c.mu.Unlock()
		return nil, ErrBusy
	}
	r := c.cur
	c.state = Finalizing
	c.mu.Unlock()

	c.notify.StateChanged(Finalizing)
	r.driver.Halt()
	go c.finalize(r)
	return r.finalized, nil
}

// Reset forgets the last finished session.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return ErrBusy
	}
	c.last = nil
	return nil
}

// Close stops an active session and waits for it to finalize.
func (c *Controller) Close() {
	done, err := c.Stop()
	if errors.Is(err, ErrBusy) {
		c.mu.Lock()
		if c.cur != nil {
			done = c.cur.finalized
		}
		c.mu.Unlock()
	}
	if done != nil {
		<-done
	}
}
