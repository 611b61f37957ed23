//go:build windows

package beep

import "github.com/gen2brain/beeep"

func Init() {}

// play uses the console speaker; tones keep their pitch and rough length.
func play(t Tone) {
	spec, ok := specs[t]
	if !ok {
		return
	}
	go func() {
		for i := 0; i < spec.repeat; i++ {
			beeep.Beep(spec.freq, int(spec.dur*1000))
		}
	}()
}
