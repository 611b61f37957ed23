package encoder

import "testing"

func TestByExt(t *testing.T) {
	for _, ext := range []string{"flac", ".FLAC"} {
		f, ok := ByExt(ext)
		if !ok || f.MIMEType != "audio/flac" {
			t.Errorf("ByExt(%q) = %v, %v", ext, f.MIMEType, ok)
		}
	}
	if _, ok := ByExt("mp3"); ok {
		t.Error("mp3 should not resolve")
	}
}
