// Package beep plays short audible cues and desktop notices for session
// events.
package beep

import (
	"math"
	"sync"

	"github.com/gen2brain/beeep"

	"earshot/log"
)

var (
	disabled       bool
	notifyDisabled bool
)

func Disable()       { disabled = true }
func DisableNotify() { notifyDisabled = true }

type Tone int

const (
	ToneStart Tone = iota
	ToneEnd
	// ToneAlert marks an automatic recognizer restart.
	ToneAlert
	ToneError
)

const sampleRate = 44100

type toneSpec struct {
	freq   float64
	volume float64
	decay  float64
	dur    float64
	gap    float64
	repeat int
}

var specs = map[Tone]toneSpec{
	ToneStart: {freq: 1200, volume: 0.5, decay: 60, dur: 0.2, repeat: 1},
	ToneEnd:   {freq: 900, volume: 0.5, decay: 40, dur: 0.2, repeat: 1},
	ToneAlert: {freq: 700, volume: 0.6, decay: 25, dur: 0.12, gap: 0.06, repeat: 3},
	ToneError: {freq: 350, volume: 0.6, decay: 30, dur: 0.08, gap: 0.05, repeat: 2},
}

var (
	cacheMu sync.Mutex
	cache   = map[Tone][]int16{}
)

// samples returns the mono 16-bit waveform for t.
func samples(t Tone) []int16 {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if s, ok := cache[t]; ok {
		return s
	}
	spec, ok := specs[t]
	if !ok {
		return nil
	}
	tick := generateTick(sampleRate, spec.freq, spec.dur, spec.volume, spec.decay)
	gap := make([]int16, int(float64(sampleRate)*spec.gap))
	var out []int16
	for i := 0; i < spec.repeat; i++ {
		if i > 0 {
			out = append(out, gap...)
		}
		out = append(out, tick...)
	}
	cache[t] = out
	return out
}

func generateTick(sampleRate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	out := make([]int16, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		out[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return out
}

func toBytes(s []int16) []byte {
	buf := make([]byte, len(s)*2)
	for i, v := range s {
		buf[i*2] = byte(v)
		buf[i*2+1] = byte(v >> 8)
	}
	return buf
}

func Play(t Tone) {
	if disabled {
		return
	}
	play(t)
}

func PlayStart() { Play(ToneStart) }
func PlayEnd()   { Play(ToneEnd) }
func PlayAlert() { Play(ToneAlert) }
func PlayError() { Play(ToneError) }

// Notify shows a desktop notification without blocking the caller.
func Notify(title, message string) {
	if disabled || notifyDisabled {
		return
	}
	go func() {
		if err := beeep.Notify(title, message, ""); err != nil {
			log.Warnf("notify: %v", err)
		}
	}()
}
