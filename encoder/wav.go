package encoder

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type WavEncoder struct {
	out         *memFile
	enc         *wav.Encoder
	format      *audio.Format
	totalFrames uint64
	closed      bool
	mu          sync.Mutex
}

func NewWav() (*WavEncoder, error) {
	out := &memFile{}
	return &WavEncoder{
		out:    out,
		enc:    wav.NewEncoder(out, SampleRate, BitsPerSample, Channels, 1),
		format: &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
	}, nil
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("wav: encode after close")
	}
	if len(block) == 0 {
		return nil
	}
	buf := &audio.IntBuffer{
		Format:         e.format,
		Data:           make([]int, len(block)),
		SourceBitDepth: BitsPerSample,
	}
	for i, s := range block {
		buf.Data[i] = int(s)
	}
	if err := e.enc.Write(buf); err != nil {
		return fmt.Errorf("writing wav samples: %w", err)
	}
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.enc.Close()
}

func (e *WavEncoder) Bytes() []byte {
	return e.out.buf
}

func (e *WavEncoder) TotalFrames() uint64 {
	return e.totalFrames
}

// memFile is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		if end > int64(cap(m.buf)) {
			grown := make([]byte, end, max(end, 2*int64(cap(m.buf))))
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memfile: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = abs
	return abs, nil
}
