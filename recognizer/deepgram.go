package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"earshot/audio"
	"earshot/log"

	"nhooyr.io/websocket"
)

const (
	DefaultEndpoint = "wss://api.deepgram.com/v1/listen"
	DefaultModel    = "nova-3"

	streamChunkMs  = 200
	stopGrace      = time.Second
	audioQueueSize = 128
)

type DeepgramConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Locale   string

	Audio      audio.Context
	Device     *audio.DeviceInfo
	SampleRate uint32
	Channels   uint32
}

type deepgramResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Deepgram streams microphone PCM to Deepgram's live endpoint. Each Start
// opens its own capture and socket; both are released before EventEnd.
type Deepgram struct {
	cfg    DeepgramConfig
	events chan Event

	mu     sync.Mutex
	stream *dgStream
}

func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &Deepgram{cfg: cfg, events: make(chan Event, 64)}
}

// DeepgramFactory returns a Factory that builds a Deepgram recognizer per
// session.
func DeepgramFactory(cfg DeepgramConfig) Factory {
	return func() (Recognizer, error) {
		if cfg.APIKey == "" {
			return nil, errors.New("recognizer: deepgram api key not set")
		}
		if cfg.Audio == nil {
			return nil, errors.New("recognizer: no audio context")
		}
		return NewDeepgram(cfg), nil
	}
}

func (d *Deepgram) Events() <-chan Event { return d.events }

func (d *Deepgram) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &dgStream{
		owner:   d,
		ctx:     ctx,
		cancel:  cancel,
		audioCh: make(chan []byte, audioQueueSize),
		stopped: make(chan struct{}),
		started: time.Now(),
	}
	d.stream = s
	go s.run()
	return nil
}

func (d *Deepgram) Stop() {
	d.mu.Lock()
	s := d.stream
	d.mu.Unlock()
	if s != nil {
		s.stop()
	}
}

// emit delivers ev unless the stream was asked to stop; nothing reads
// events after that.
func (s *dgStream) emit(ev Event) {
	select {
	case s.owner.events <- ev:
	case <-s.stopped:
	}
}

func (d *Deepgram) endpoint() (string, error) {
	u, err := url.Parse(d.cfg.Endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", d.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", d.cfg.SampleRate))
	q.Set("channels", fmt.Sprintf("%d", d.cfg.Channels))
	q.Set("interim_results", "true")
	if d.cfg.Locale != "" {
		q.Set("language", d.cfg.Locale)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type dgStream struct {
	owner   *Deepgram
	ctx     context.Context
	cancel  context.CancelFunc
	audioCh chan []byte
	stopped chan struct{}
	started time.Time

	mu       sync.Mutex
	conn     *websocket.Conn
	capture  audio.CaptureDevice
	stopping bool
	finals   []Result
	stats    StreamStats
	feedBuf  []byte
	stopOnce sync.Once
}

// StreamStats counts traffic for one recognition stream.
type StreamStats struct {
	Connect      time.Duration
	SentChunks   int
	SentBytes    uint64
	RecvMessages int
	RecvFinal    int
}

func (s *dgStream) chunkBytes() int {
	cfg := s.owner.cfg
	return int(cfg.SampleRate) * int(cfg.Channels) * 2 * streamChunkMs / 1000
}

func (s *dgStream) run() {
	d := s.owner
	defer s.finish()

	capture, err := d.cfg.Audio.NewCapture(d.cfg.Device, audio.CaptureConfig{
		SampleRate: d.cfg.SampleRate,
		Channels:   d.cfg.Channels,
	})
	if err != nil {
		code := CodeAudioCapture
		if errors.Is(err, audio.ErrPermissionDenied) {
			code = CodeNotAllowed
		}
		s.emit(Event{Type: EventError, Code: code, Err: err})
		return
	}
	s.mu.Lock()
	s.capture = capture
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return
	}

	endpoint, err := d.endpoint()
	if err != nil {
		s.emit(Event{Type: EventError, Code: CodeNetwork, Err: err})
		return
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	connectStart := time.Now()
	conn, _, err := websocket.Dial(s.ctx, endpoint, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		if s.isStopping() {
			return
		}
		s.emit(Event{Type: EventError, Code: CodeNetwork, Err: fmt.Errorf("dial deepgram: %w", err)})
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.stats.Connect = time.Since(connectStart)
	s.mu.Unlock()

	capture.SetCallback(s.feed)
	if err := capture.Start(); err != nil {
		s.emit(Event{Type: EventError, Code: CodeAudioCapture, Err: err})
		return
	}
	s.emit(Event{Type: EventStart})

	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		s.runSender()
	}()
	s.runReceiver()
	s.cancel()
	<-sendDone
}

func (s *dgStream) feed(data []byte, _ uint32) {
	n := s.chunkBytes()
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.feedBuf = append(s.feedBuf, data...)
	var chunks [][]byte
	for len(s.feedBuf) >= n {
		chunk := make([]byte, n)
		copy(chunk, s.feedBuf[:n])
		s.feedBuf = s.feedBuf[n:]
		chunks = append(chunks, chunk)
	}
	s.mu.Unlock()

	for _, c := range chunks {
		select {
		case s.audioCh <- c:
		default:
			log.Warn("deepgram: audio queue full, dropping chunk")
		}
	}
}

func (s *dgStream) runSender() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case chunk := <-s.audioCh:
			if err := s.conn.Write(s.ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
			s.mu.Lock()
			s.stats.SentChunks++
			s.stats.SentBytes += uint64(len(chunk))
			s.mu.Unlock()
		}
	}
}

func (s *dgStream) runReceiver() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if !s.isStopping() && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.emit(Event{Type: EventError, Code: CodeNetwork, Err: err})
			}
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			log.Warnf("deepgram: bad message: %v", err)
			continue
		}
		if resp.Type != "" && resp.Type != "Results" {
			continue
		}

		transcript := ""
		if len(resp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
		}
		isFinal := resp.IsFinal || resp.SpeechFinal || resp.FromFinalize

		s.mu.Lock()
		s.stats.RecvMessages++
		if isFinal {
			s.stats.RecvFinal++
		}
		if transcript == "" {
			s.mu.Unlock()
			continue
		}
		idx := len(s.finals)
		results := append([]Result(nil), s.finals...)
		r := Result{Transcript: transcript, IsFinal: isFinal}
		results = append(results, r)
		if isFinal {
			s.finals = append(s.finals, r)
		}
		s.mu.Unlock()

		s.emit(Event{Type: EventResult, ResultIndex: idx, Results: results})
	}
}

func (s *dgStream) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// stop asks the server to flush and close, then forces the socket shut
// after a grace period.
func (s *dgStream) stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.mu.Lock()
		s.stopping = true
		conn := s.conn
		capture := s.capture
		s.mu.Unlock()

		if capture != nil {
			capture.Stop()
		}
		if conn == nil {
			s.cancel()
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, stopGrace)
		if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
			cancel()
			s.cancel()
			return
		}
		cancel()
		time.AfterFunc(stopGrace, s.cancel)
	})
}

func (s *dgStream) finish() {
	d := s.owner
	s.mu.Lock()
	s.stopping = true
	conn := s.conn
	capture := s.capture
	stats := s.stats
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
	if capture != nil {
		capture.ClearCallback()
		capture.Close()
	}

	d.mu.Lock()
	if d.stream == s {
		d.stream = nil
	}
	d.mu.Unlock()

	bytesPerSec := float64(d.cfg.SampleRate) * float64(d.cfg.Channels) * 2
	log.StreamMetrics(log.StreamMetricsData{
		ConnectMs:    float64(stats.Connect.Milliseconds()),
		TotalMs:      float64(time.Since(s.started).Milliseconds()),
		AudioS:       float64(stats.SentBytes) / bytesPerSec,
		SentChunks:   stats.SentChunks,
		SentKB:       float64(stats.SentBytes) / 1024,
		RecvMessages: stats.RecvMessages,
		RecvFinal:    stats.RecvFinal,
	})
	s.emit(Event{Type: EventEnd})
}
