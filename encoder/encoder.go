package encoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

var ErrUnsupported = errors.New("encoder: unsupported container format")

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// Format is a container the recorder can produce.
type Format struct {
	MIMEType string
	Ext      string
	New      func() (Encoder, error)
}

var formats = []Format{
	{MIMEType: "audio/flac", Ext: "flac", New: func() (Encoder, error) { return NewFlac() }},
	{MIMEType: "audio/wav", Ext: "wav", New: func() (Encoder, error) { return NewWav() }},
}

// DefaultPreferences lists container formats from most to least preferred.
// Opus is first for parity with browser recorders; no encoder backs it, so
// probing falls through to FLAC.
var DefaultPreferences = []string{"audio/ogg;codecs=opus", "audio/flac", "audio/wav"}

func normalize(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch mime {
	case "audio/x-flac":
		return "audio/flac"
	case "audio/x-wav", "audio/wave":
		return "audio/wav"
	}
	return mime
}

func Lookup(mime string) (Format, bool) {
	mime = normalize(mime)
	for _, f := range formats {
		if f.MIMEType == mime {
			return f, true
		}
	}
	return Format{}, false
}

// ByExt finds the format whose file extension is ext, with or without the
// leading dot.
func ByExt(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, f := range formats {
		if f.Ext == ext {
			return f, true
		}
	}
	return Format{}, false
}

// Supported probes mime by building and closing a throwaway encoder.
func Supported(mime string) bool {
	f, ok := Lookup(mime)
	if !ok {
		return false
	}
	enc, err := f.New()
	if err != nil {
		return false
	}
	return enc.Close() == nil
}

// Negotiate returns the first supported format in prefs.
func Negotiate(prefs []string) (Format, error) {
	for _, mime := range prefs {
		if Supported(mime) {
			f, _ := Lookup(mime)
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: none of %v", ErrUnsupported, prefs)
}

// EncodePCM encodes 16-bit little-endian mono PCM into one container blob.
func EncodePCM(f Format, pcm []byte) ([]byte, error) {
	enc, err := f.New()
	if err != nil {
		return nil, err
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing %s encoder: %w", f.MIMEType, err)
	}
	return enc.Bytes(), nil
}
