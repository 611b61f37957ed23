package toc

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Exporter writes a snapshot in one file format.
type Exporter interface {
	Export(s Snapshot, w io.Writer) error
	Extension() string
}

func NewExporter(format string) (Exporter, error) {
	switch format {
	case "", "txt", "text":
		return &TextExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: txt, md, json, yaml)", format)
	}
}

// TextExporter writes one "MM:SS | icon label: content" line per entry, UTF-8.
type TextExporter struct{}

func (e *TextExporter) Export(s Snapshot, w io.Writer) error {
	for _, line := range s.Lines() {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (e *TextExporter) Extension() string { return "txt" }

type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(s Snapshot, w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", s.Start.Format("2006-01-02 15:04:05"))
	for _, en := range s.Entries {
		fmt.Fprintf(&b, "- `%s` %s **%s**: %s\n", en.RelativeTime(), en.Kind.Icon(), en.Kind.Label(), en.Content)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (e *MarkdownExporter) Extension() string { return "md" }

type record struct {
	Time    string `json:"time" yaml:"time"`
	Kind    string `json:"kind" yaml:"kind"`
	Content string `json:"content" yaml:"content"`
}

type document struct {
	Start   time.Time `json:"start" yaml:"start"`
	Entries []record  `json:"entries" yaml:"entries"`
}

func toDocument(s Snapshot) document {
	d := document{Start: s.Start, Entries: make([]record, len(s.Entries))}
	for i, e := range s.Entries {
		d.Entries[i] = record{Time: e.RelativeTime(), Kind: e.Kind.String(), Content: e.Content}
	}
	return d
}

type JSONExporter struct{}

func (e *JSONExporter) Export(s Snapshot, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(toDocument(s))
}

func (e *JSONExporter) Extension() string { return "json" }

type YAMLExporter struct{}

func (e *YAMLExporter) Export(s Snapshot, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(toDocument(s)); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func (e *YAMLExporter) Extension() string { return "yaml" }
