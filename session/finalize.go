package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"earshot/analysis"
	"earshot/credential"
	"earshot/export"
	"earshot/log"
	"earshot/recorder"
	"earshot/toc"
)

// Result is a finalized session.
type Result struct {
	ID         string
	Start      time.Time
	End        time.Time
	Status     string
	Audio      recorder.Blob
	AudioPath  string
	TOC        toc.Snapshot
	Transcript []string
	Report     *analysis.Report
	ReportPath string
}

func (r *Result) Duration() time.Duration { return r.End.Sub(r.Start) }

func (c *Controller) finalize(r *run) {
	defer close(r.finalized)

	r.driver.Halt()
	r.cancel()
	<-r.loopDone
	r.toc.Close()

	res := &Result{
		ID:         r.id,
		Start:      r.start,
		End:        c.opts.Now(),
		Status:     StatusComplete,
		TOC:        r.toc.Snapshot(),
		Transcript: r.transcript,
	}

	var notices []Notice
	if n, ok := c.collectAudio(r, res); !ok {
		notices = append(notices, n)
	}

	if c.opts.Archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.opts.Archive.EndSession(ctx, res.ID, res.End, res.Status, res.AudioPath, res.Audio.Size()); err != nil {
			log.Warnf("session: archive end: %v", err)
		}
		cancel()
	}
	log.SessionEnd(res.ID, len(res.Transcript), r.toc.Count(toc.Topic), res.Audio.Size(), res.Status)

	c.mu.Lock()
	c.state = Idle
	c.cur = nil
	c.last = res
	c.mu.Unlock()

	for _, n := range notices {
		c.notify.Notice(n)
	}
	c.notify.StateChanged(Idle)
	c.notify.Finalized(res)
}

// collectAudio flushes the recorder into res. A false return carries the
// notice describing what went wrong.
func (c *Controller) collectAudio(r *run, res *Result) (Notice, bool) {
	empty := Notice{Level: LevelWarn, Err: ErrEmptyRecording, Message: "no audio was recorded; the table of contents is still available"}
	if r.rec == nil {
		res.Status = StatusEmpty
		return empty, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.FlushTimeout)
	blob, err := r.rec.Flush(ctx)
	cancel()
	switch {
	case errors.Is(err, recorder.ErrEmpty):
		res.Status = StatusEmpty
		return empty, false
	case err != nil:
		res.Status = StatusFailed
		return Notice{Level: LevelError, Err: err, Message: "could not encode the recording"}, false
	}

	res.Audio = blob
	if c.opts.Files == nil {
		return Notice{}, true
	}
	path, err := export.WriteAudio(c.opts.Files, r.start, blob)
	if err != nil {
		return Notice{Level: LevelError, Err: err, Message: "could not save the recording"}, false
	}
	res.AudioPath = path
	return Notice{}, true
}

// Analyze sends the last finished session to the analysis models and saves
// the report next to the recording.
func (c *Controller) Analyze(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	last := c.last
	switch {
	case last == nil:
		c.mu.Unlock()
		return nil, ErrNothingToAnalyze
	case c.analyzing:
		c.mu.Unlock()
		return nil, ErrAnalyzing
	}
	c.analyzing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.analyzing = false
		c.mu.Unlock()
	}()

	key, err := credential.Resolve(ctx, c.opts.Credentials)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingCredential, err)
	}
	model, err := c.opts.NewModel(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}

	rep, err := analysis.New(model, c.opts.Analysis).Analyze(ctx, last.Audio, last.Transcript)
	switch {
	case errors.Is(err, analysis.ErrEndpointsExhausted):
		err = fmt.Errorf("%w: %w", ErrExportEndpointExhausted, err)
		c.notify.Notice(Notice{Level: LevelError, Err: ErrExportEndpointExhausted, Message: "analysis failed on every model; try again later"})
		return nil, err
	case errors.Is(err, analysis.ErrNoAudio):
		return nil, fmt.Errorf("%w: %w", ErrEmptyRecording, err)
	case err != nil:
		return nil, err
	}

	updated := *last
	updated.Report = &rep
	if c.opts.Files != nil {
		path, err := export.WriteReport(c.opts.Files, last.Start, rep.HTML)
		if err != nil {
			log.Warnf("session: save report: %v", err)
		} else {
			updated.ReportPath = path
		}
	}
	if c.opts.Archive != nil {
		if _, err := c.opts.Archive.SaveReport(ctx, last.ID, rep.Model, rep.HTML); err != nil {
			log.Warnf("session: archive report: %v", err)
		}
	}

	c.mu.Lock()
	if c.last == last {
		c.last = &updated
	}
	c.mu.Unlock()

	out := updated
	return &out, nil
}

// ExportTOC writes the table of contents of the active session, or of the
// last finished one, in the given format.
func (c *Controller) ExportTOC(format string) (string, error) {
	if c.opts.Files == nil {
		return "", ErrNoOutput
	}
	ex, err := toc.NewExporter(format)
	if err != nil {
		return "", err
	}

	var snap toc.Snapshot
	c.mu.Lock()
	switch {
	case c.cur != nil:
		snap = c.cur.toc.Snapshot()
	case c.last != nil:
		snap = c.last.TOC
	}
	c.mu.Unlock()

	return export.WriteTOC(c.opts.Files, snap, ex)
}

// ExportTOC writes r's table of contents into fs.
func (r *Result) ExportTOC(fs export.FileStore, format string) (string, error) {
	ex, err := toc.NewExporter(format)
	if err != nil {
		return "", err
	}
	return export.WriteTOC(fs, r.TOC, ex)
}
