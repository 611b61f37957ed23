package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const WAVHeaderSize = 44

var (
	ErrPermissionDenied = errors.New("audio: microphone access denied")
	ErrNoDevice         = errors.New("audio: no capture device")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether it is a Bluetooth
// headset. Those fall back to 8-16kHz profiles while the mic is open.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// Gain is a software multiplier applied where the backend records
	// quietly. Zero means unity.
	Gain int
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice delivers 16-bit little-endian PCM to its callback between
// Start and Stop. Close releases the device; it implies Stop.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// FindDevice returns the device called name, or nil for the system default
// when name is empty.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDevice, name)
}

// Amplify multiplies samples by gain, clipping at the int16 range, and
// returns them as little-endian PCM. A gain below one is unity.
func Amplify(samples []int16, gain int) []byte {
	if gain < 1 {
		gain = 1
	}
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s) * int32(gain)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// classifyOpenError marks backend errors that mean the OS refused the
// microphone so callers can match ErrPermissionDenied.
func classifyOpenError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"access denied", "permission denied", "not permitted", "not authorized", "access-denied"} {
		if strings.Contains(msg, kw) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}
	return err
}
