// Package clipboard copies analysis reports to the system clipboard.
package clipboard

import (
	"html"
	"regexp"
	"strings"

	cb "github.com/atotto/clipboard"
)

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// CopyReport copies the readable text of an HTML report.
func CopyReport(report string) error {
	return Copy(PlainText(report))
}

var (
	blockTag  = regexp.MustCompile(`(?i)</?(h[1-6]|p|div|ul|ol|br|tr|table|section)[^>]*>`)
	itemTag   = regexp.MustCompile(`(?i)<li[^>]*>`)
	anyTag    = regexp.MustCompile(`<[^>]*>`)
	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// PlainText turns report HTML into text the way a browser's innerText
// roughly would: block tags become line breaks, list items get bullets.
func PlainText(s string) string {
	s = itemTag.ReplaceAllString(s, "\n- ")
	s = blockTag.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
