// Package hotkey listens for a global key combination so recording can be
// toggled while the terminal is not focused.
package hotkey

import (
	"fmt"
	"strings"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Combo is a key plus the modifiers that must be held with it.
type Combo struct {
	Ctrl  bool
	Shift bool
	Key   string
}

var DefaultCombo = Combo{Ctrl: true, Shift: true, Key: "space"}

var supportedKeys = []string{"space", "enter", "b", "r", "s", "t"}

// ParseCombo reads forms like "ctrl+shift+space". Empty means DefaultCombo.
func ParseCombo(s string) (Combo, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultCombo, nil
	}
	var c Combo
	for _, part := range strings.Split(s, "+") {
		switch part = strings.TrimSpace(part); part {
		case "ctrl", "control":
			c.Ctrl = true
		case "shift":
			c.Shift = true
		default:
			if c.Key != "" {
				return Combo{}, fmt.Errorf("hotkey %q: more than one key", s)
			}
			if !isSupported(part) {
				return Combo{}, fmt.Errorf("hotkey %q: unsupported key %q (supported: %s)", s, part, strings.Join(supportedKeys, ", "))
			}
			c.Key = part
		}
	}
	if c.Key == "" {
		return Combo{}, fmt.Errorf("hotkey %q: no key", s)
	}
	if !c.Ctrl && !c.Shift {
		return Combo{}, fmt.Errorf("hotkey %q: needs ctrl or shift", s)
	}
	return c, nil
}

func isSupported(k string) bool {
	for _, s := range supportedKeys {
		if s == k {
			return true
		}
	}
	return false
}

func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if c.Shift {
		parts = append(parts, "Shift")
	}
	k := c.Key
	if len(k) > 0 {
		k = strings.ToUpper(k[:1]) + k[1:]
	}
	return strings.Join(append(parts, k), "+")
}
