package clipboard

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "그냥 텍스트", "그냥 텍스트"},
		{
			"headings and lists",
			"<h2>🎯 요약</h2><ul><li>날씨 이야기</li><li>우산 &amp; 장화</li></ul>",
			"🎯 요약\n\n- 날씨 이야기\n- 우산 & 장화",
		},
		{"paragraph breaks", "<p>하나</p>\n\n\n\n<p>둘</p>", "하나\n\n둘"},
		{"unknown tags dropped", `<span class="x">강조</span>됨`, "강조됨"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Errorf("PlainText = %q, want %q", got, tt.want)
			}
		})
	}
}
