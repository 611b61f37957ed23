// Package recorder captures the session's microphone audio next to
// recognition and turns it into one encoded blob when the session stops.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"earshot/audio"
	"earshot/encoder"
	"earshot/log"
)

var ErrEmpty = errors.New("recorder: no audio captured")

// Blob is an immutable encoded recording.
type Blob struct {
	Data     []byte
	MIMEType string
	Ext      string
	Duration time.Duration
}

func (b Blob) Size() int { return len(b.Data) }

type state int

const (
	stateIdle state = iota
	stateAcquiring
	stateRecording
	stateStopped
)

type Options struct {
	Device  *audio.DeviceInfo
	Formats []string
	Gain    int
}

type Recorder struct {
	actx   audio.Context
	opts   Options
	format encoder.Format

	mu       sync.Mutex
	state    state
	capture  audio.CaptureDevice
	started  bool
	acquired chan struct{}
	failures chan error

	bufMu  sync.Mutex
	chunks [][]byte
	size   int
	sealed bool
}

// New picks the first container in opts.Formats that an encoder can
// actually produce.
func New(actx audio.Context, opts Options) (*Recorder, error) {
	prefs := opts.Formats
	if len(prefs) == 0 {
		prefs = encoder.DefaultPreferences
	}
	format, err := encoder.Negotiate(prefs)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		actx:     actx,
		opts:     opts,
		format:   format,
		acquired: make(chan struct{}),
		failures: make(chan error, 1),
	}, nil
}

func (r *Recorder) Format() encoder.Format { return r.format }

// Failures reports an acquisition failure. Recording failures never stop
// the rest of the session.
func (r *Recorder) Failures() <-chan error { return r.failures }

// Start acquires the microphone in the background and returns at once.
func (r *Recorder) Start() {
	r.mu.Lock()
	if r.state != stateIdle {
		r.mu.Unlock()
		return
	}
	r.state = stateAcquiring
	r.started = true
	r.mu.Unlock()

	go r.acquire()
}

func (r *Recorder) acquire() {
	defer close(r.acquired)

	dev, err := r.actx.NewCapture(r.opts.Device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
		Gain:       r.opts.Gain,
	})
	if err != nil {
		r.fail(fmt.Errorf("acquire microphone: %w", err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateStopped {
		// Stopped while the device was being opened.
		dev.Close()
		log.Info("recorder: released microphone acquired after stop")
		return
	}

	dev.SetCallback(r.onData)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		r.state = stateStopped
		r.fail(fmt.Errorf("start capture: %w", err))
		return
	}
	r.capture = dev
	r.state = stateRecording
	log.Infof("recorder: capturing %s from %s", r.format.MIMEType, dev.DeviceName())
}

func (r *Recorder) fail(err error) {
	log.Warnf("recorder: %v", err)
	select {
	case r.failures <- err:
	default:
	}
}

func (r *Recorder) onData(data []byte, _ uint32) {
	if len(data) == 0 {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)

	r.bufMu.Lock()
	defer r.bufMu.Unlock()
	if r.sealed {
		return
	}
	r.chunks = append(r.chunks, chunk)
	r.size += len(chunk)
}

// Stop releases the microphone. An acquisition still in flight releases
// its device as soon as it completes.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.state = stateStopped
	dev := r.capture
	r.capture = nil
	r.mu.Unlock()

	if dev != nil {
		dev.ClearCallback()
		dev.Close()
	}
}

func (r *Recorder) ChunkCount() int {
	r.bufMu.Lock()
	defer r.bufMu.Unlock()
	return len(r.chunks)
}

func (r *Recorder) Size() int {
	r.bufMu.Lock()
	defer r.bufMu.Unlock()
	return r.size
}

// Flush stops capture, takes ownership of the buffered chunks and encodes
// them. It waits for a pending acquisition until ctx is done. After Flush
// the recorder accepts no more data.
func (r *Recorder) Flush(ctx context.Context) (Blob, error) {
	r.Stop()

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if started {
		select {
		case <-r.acquired:
		case <-ctx.Done():
			log.Warn("recorder: flushing while microphone acquisition is still pending")
		}
	}

	r.bufMu.Lock()
	chunks := r.chunks
	size := r.size
	r.chunks = nil
	r.size = 0
	r.sealed = true
	r.bufMu.Unlock()

	if size == 0 {
		return Blob{MIMEType: r.format.MIMEType, Ext: r.format.Ext}, ErrEmpty
	}

	pcm := make([]byte, 0, size)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}
	data, err := encoder.EncodePCM(r.format, pcm)
	if err != nil {
		return Blob{}, fmt.Errorf("encode recording: %w", err)
	}
	bytesPerSecond := encoder.SampleRate * encoder.Channels * encoder.BitsPerSample / 8
	return Blob{
		Data:     data,
		MIMEType: r.format.MIMEType,
		Ext:      r.format.Ext,
		Duration: time.Duration(len(pcm)) * time.Second / time.Duration(bytesPerSecond),
	}, nil
}
