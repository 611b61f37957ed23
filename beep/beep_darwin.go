//go:build darwin

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	malgoCtx  *malgo.AllocatedContext
	device    *malgo.Device
	pcm       map[Tone][]byte
	soundOnce sync.Once

	// accessed from the device callback
	playBuf atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initSound() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	pcm = make(map[Tone][]byte, len(specs))
	for t := range specs {
		pcm[t] = toBytes(samples(t))
	}
	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func dataCallback(out, _ []byte, frameCount uint32) {
	buf := playBuf.Load()
	want := frameCount * 2
	if buf == nil || len(*buf) == 0 {
		clear(out)
		return
	}
	pos := playPos.Load()
	remaining := uint32(len(*buf)) - pos
	if remaining == 0 {
		playBuf.Store(nil)
		clear(out)
		return
	}
	n := min(want, remaining)
	copy(out[:n], (*buf)[pos:pos+n])
	playPos.Store(pos + n)
	clear(out[n:want])
}

func Init() {
	soundOnce.Do(initSound)
}

func play(t Tone) {
	soundOnce.Do(initSound)
	if malgoCtx == nil {
		return
	}
	b := pcm[t]
	if len(b) == 0 {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}
	device.Stop()
	playPos.Store(0)
	playBuf.Store(&b)

	if err := device.Start(); err != nil {
		// device handles go stale across sleep/wake
		device.Uninit()
		if err := initDevice(); err != nil {
			playBuf.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playBuf.Store(nil)
		}
	}
}
