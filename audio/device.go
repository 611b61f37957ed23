package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrCancelled = errors.New("audio: device selection cancelled")

type pickKey int

const (
	keyNone pickKey = iota
	keyUp
	keyDown
	keyEnter
	keyCancel
)

// decodeKey maps one raw terminal read to a picker key.
func decodeKey(b []byte) pickKey {
	switch {
	case len(b) == 1:
		switch b[0] {
		case '\r', '\n':
			return keyEnter
		case 3, 'q': // Ctrl+C
			return keyCancel
		case 'j':
			return keyDown
		case 'k':
			return keyUp
		}
	case len(b) == 3 && b[0] == 0x1b && b[1] == '[':
		switch b[2] {
		case 'A':
			return keyUp
		case 'B':
			return keyDown
		}
	}
	return keyNone
}

type picker struct {
	devices []DeviceInfo
	cursor  int
}

// press applies k and reports whether selection is finished.
func (p *picker) press(k pickKey) (done bool, err error) {
	switch k {
	case keyUp:
		if p.cursor > 0 {
			p.cursor--
		}
	case keyDown:
		if p.cursor < len(p.devices)-1 {
			p.cursor++
		}
	case keyEnter:
		return true, nil
	case keyCancel:
		return true, ErrCancelled
	}
	return false, nil
}

func (p *picker) render(w io.Writer) {
	var b strings.Builder
	b.WriteString("\r\x1b[J")
	b.WriteString("Select microphone (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range p.devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[⚠ headset profile, lower quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(&b, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(&b, "    %s%s\r\n", d.Name, tag)
		}
	}
	io.WriteString(w, b.String())
}

// SelectDevice asks on the terminal which microphone to record from. A
// single device is returned without asking.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := &picker{devices: devices}
	return p.run(os.Stdin, os.Stdout)
}

func (p *picker) run(r io.Reader, w io.Writer) (*DeviceInfo, error) {
	p.render(w)
	buf := make([]byte, 3)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		done, err := p.press(decodeKey(buf[:n]))
		if done {
			io.WriteString(w, "\r\n")
			if err != nil {
				return nil, err
			}
			return &p.devices[p.cursor], nil
		}
		fmt.Fprintf(w, "\x1b[%dA", len(p.devices)+2)
		p.render(w)
	}
}
