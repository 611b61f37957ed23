package encoder

import (
	"encoding/binary"
	"math"
	"os"
	"testing"
)

func sine(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	return out
}

func TestFlacEncoder(t *testing.T) {
	data, err := os.ReadFile("../test/data/short.wav")
	if err != nil {
		t.Skip("test/data/short.wav not found")
	}

	audioData := data[44:]
	samples := make([]int16, len(audioData)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(audioData[i*2:]))
	}

	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	var totalFed uint64
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		block := samples[i:end]
		if err := enc.EncodeBlock(block); err != nil {
			t.Fatalf("EncodeBlock at offset %d: %v", i, err)
		}
		totalFed += uint64(len(block))
	}

	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if enc.TotalFrames() != totalFed {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), totalFed)
	}

	flacData := enc.Bytes()
	if len(flacData) < 4 || string(flacData[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
}

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if len(enc.Bytes()) == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestFlacEncodeAfterClose(t *testing.T) {
	enc, _ := NewFlac()
	enc.Close()
	if err := enc.EncodeBlock(sine(16)); err == nil {
		t.Error("expected error encoding after close")
	}
	if err := enc.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWavEncoder(t *testing.T) {
	enc, err := NewWav()
	if err != nil {
		t.Fatal(err)
	}
	block := sine(BlockSize / 4)
	if err := enc.EncodeBlock(block); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	out := enc.Bytes()
	if len(out) < 44+len(block)*2 {
		t.Fatalf("wav too short: %d bytes", len(out))
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Errorf("bad wav header: %q %q", out[0:4], out[8:12])
	}
	if enc.TotalFrames() != uint64(len(block)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(block))
	}
}

func TestMemFileSeekPatch(t *testing.T) {
	m := &memFile{}
	m.Write([]byte("abcdef"))
	m.Seek(2, 0)
	m.Write([]byte("XY"))
	m.Seek(0, 2)
	m.Write([]byte("!"))
	if string(m.buf) != "abXYef!" {
		t.Errorf("buf = %q", m.buf)
	}
	if _, err := m.Seek(-1, 0); err == nil {
		t.Error("negative seek accepted")
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		prefs []string
		want  string
		fail  bool
	}{
		{DefaultPreferences, "audio/flac", false},
		{[]string{"audio/webm;codecs=opus", "audio/x-wav"}, "audio/wav", false},
		{[]string{"audio/WAV"}, "audio/wav", false},
		{[]string{"audio/mp4", "audio/ogg;codecs=opus"}, "", true},
		{nil, "", true},
	}
	for _, tt := range tests {
		f, err := Negotiate(tt.prefs)
		if tt.fail {
			if err == nil {
				t.Errorf("Negotiate(%v) = %s, want error", tt.prefs, f.MIMEType)
			}
			continue
		}
		if err != nil || f.MIMEType != tt.want {
			t.Errorf("Negotiate(%v) = %q, %v; want %q", tt.prefs, f.MIMEType, err, tt.want)
		}
	}
}

func TestEncodePCM(t *testing.T) {
	pcm := make([]byte, (BlockSize+100)*2)
	for i, s := range sine(BlockSize + 100) {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	for _, mime := range []string{"audio/flac", "audio/wav"} {
		f, _ := Lookup(mime)
		out, err := EncodePCM(f, pcm)
		if err != nil {
			t.Fatalf("%s: %v", mime, err)
		}
		if len(out) == 0 {
			t.Errorf("%s: empty output", mime)
		}
	}
}
