// Package export writes finished-session artifacts into a downloads
// directory: the recording, the TOC text and the analysis report.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"earshot/recorder"
	"earshot/toc"
)

const stampLayout = "20060102-150405"

var ErrEmptyTOC = errors.New("export: toc has no entries")

// FileStore is where artifacts land.
type FileStore interface {
	Create(name string) (io.WriteCloser, error)
	Exists(name string) bool
	Remove(name string) error
	Path(name string) string
}

type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

func (l *Local) Dir() string { return l.dir }

func (l *Local) Path(name string) string {
	return filepath.Join(l.dir, name)
}

func (l *Local) Create(name string) (io.WriteCloser, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return os.OpenFile(l.Path(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}

func (l *Local) Exists(name string) bool {
	_, err := os.Stat(l.Path(name))
	return err == nil
}

func (l *Local) Remove(name string) error {
	return os.Remove(l.Path(name))
}

func AudioName(start time.Time, ext string) string {
	return fmt.Sprintf("earshot-%s.%s", start.Format(stampLayout), ext)
}

func TOCName(start time.Time, ext string) string {
	return fmt.Sprintf("earshot-toc-%s.%s", start.Format(stampLayout), ext)
}

func ReportName(start time.Time) string {
	return fmt.Sprintf("earshot-report-%s.html", start.Format(stampLayout))
}

// unique appends -1, -2, ... before the extension until name is free.
func unique(fs FileStore, name string) string {
	if !fs.Exists(name) {
		return name
	}
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", base, i, ext)
		if !fs.Exists(candidate) {
			return candidate
		}
	}
}

// write creates name in fs and fills it. A failed write leaves no file.
func write(fs FileStore, name string, fill func(io.Writer) error) (string, error) {
	name = unique(fs, name)
	f, err := fs.Create(name)
	if err != nil {
		return "", err
	}
	if err := fill(f); err != nil {
		f.Close()
		fs.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		fs.Remove(name)
		return "", err
	}
	return fs.Path(name), nil
}

func WriteAudio(fs FileStore, start time.Time, blob recorder.Blob) (string, error) {
	if blob.Size() == 0 {
		return "", recorder.ErrEmpty
	}
	return write(fs, AudioName(start, blob.Ext), func(w io.Writer) error {
		_, err := w.Write(blob.Data)
		return err
	})
}

func WriteTOC(fs FileStore, snap toc.Snapshot, ex toc.Exporter) (string, error) {
	if snap.Empty() {
		return "", ErrEmptyTOC
	}
	if ex == nil {
		ex = &toc.TextExporter{}
	}
	return write(fs, TOCName(snap.Start, ex.Extension()), func(w io.Writer) error {
		return ex.Export(snap, w)
	})
}

const reportHead = `<!DOCTYPE html>
<html lang="ko">
<head><meta charset="utf-8"><title>earshot report %s</title></head>
<body>
`

func WriteReport(fs FileStore, start time.Time, html string) (string, error) {
	return write(fs, ReportName(start), func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, reportHead, start.Format("2006-01-02 15:04")); err != nil {
			return err
		}
		if _, err := io.WriteString(w, html); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n</body>\n</html>\n")
		return err
	})
}
