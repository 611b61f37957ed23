//go:build linux

package hotkey

import "testing"

func TestModStateCombo(t *testing.T) {
	c := DefaultCombo
	code := evdevKeys[c.Key]
	var m modState

	if e := m.update(c, code, code, keyPress); e != edgeNone {
		t.Fatalf("bare key fired %v", e)
	}
	m.update(c, code, code, keyRelease)

	m.update(c, code, keyLCtrl, keyPress)
	m.update(c, code, keyRShift, keyPress)
	if e := m.update(c, code, code, keyPress); e != edgeDown {
		t.Fatalf("combo press = %v, want down", e)
	}
	if e := m.update(c, code, code, 2); e != edgeNone {
		t.Errorf("autorepeat = %v, want none", e)
	}
	m.update(c, code, keyLCtrl, keyRelease)
	if e := m.update(c, code, code, keyRelease); e != edgeUp {
		t.Errorf("release = %v, want up even after modifiers lift", e)
	}
}
