package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"earshot/toc"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	id, err := s.BeginSession(ctx, t0, "ko-KR", "audio/flac")
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	s.AddUtterance(ctx, id, "오늘 날씨 어때", t0.Add(3*time.Second))
	s.AddUtterance(ctx, id, "비가 온대", t0.Add(5*time.Second))
	s.AddTOCEntry(ctx, id, toc.Entry{Kind: toc.SessionStart, Content: "녹음 시작"})
	s.AddTOCEntry(ctx, id, toc.Entry{Offset: 3 * time.Second, Kind: toc.Topic, Content: "날씨"})

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.Status != "active" || sess.EndedAt != nil {
		t.Errorf("new session = %+v", sess)
	}
	if sess.Utterances != 2 || sess.Topics != 1 {
		t.Errorf("counts = %d utterances, %d topics", sess.Utterances, sess.Topics)
	}
	if !sess.StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v, want %v", sess.StartedAt, t0)
	}

	if err := s.EndSession(ctx, id, t0.Add(time.Minute), "complete", "/tmp/a.flac", 1234); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	sess, _ = s.Session(ctx, id[:8])
	if sess.Status != "complete" || sess.AudioBytes != 1234 || sess.EndedAt == nil {
		t.Errorf("ended session = %+v", sess)
	}

	utts, err := s.Utterances(ctx, id)
	if err != nil || len(utts) != 2 || utts[0].Text != "오늘 날씨 어때" {
		t.Fatalf("Utterances = %+v, %v", utts, err)
	}

	snap, err := s.TOC(ctx, id)
	if err != nil {
		t.Fatalf("TOC: %v", err)
	}
	lines := snap.Lines()
	if len(lines) != 2 || lines[1] != "00:03 | 📌 주제: 날씨" {
		t.Errorf("TOC lines = %q", lines)
	}
}

func TestEndUnknownSession(t *testing.T) {
	s := openTest(t)
	err := s.EndSession(context.Background(), "missing", t0, "complete", "", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	first, _ := s.BeginSession(ctx, t0, "ko-KR", "audio/wav")
	second, _ := s.BeginSession(ctx, t0.Add(time.Hour), "ko-KR", "audio/wav")

	list, err := s.Sessions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second || list[1].ID != first {
		t.Errorf("Sessions order = %+v", list)
	}
	if _, err := s.Session(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v", err)
	}
	if _, err := s.Session(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty id: err = %v", err)
	}
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	id, _ := s.BeginSession(ctx, t0, "ko-KR", "audio/wav")

	if r, err := s.LatestReport(ctx, id); err != nil || r != nil {
		t.Fatalf("LatestReport before save = %+v, %v", r, err)
	}
	if _, err := s.SaveReport(ctx, id, "gemini-1.5-flash", "<h2>요약</h2>"); err != nil {
		t.Fatal(err)
	}
	r, err := s.LatestReport(ctx, id)
	if err != nil || r == nil || r.Model != "gemini-1.5-flash" || r.HTML != "<h2>요약</h2>" {
		t.Errorf("LatestReport = %+v, %v", r, err)
	}
}

func TestOpenFileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "earshot.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := s.BeginSession(context.Background(), t0, "ko-KR", "audio/wav")
	s.Close()
	if err != nil {
		t.Fatal(err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Session(context.Background(), id); err != nil {
		t.Errorf("session lost after reopen: %v", err)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 5, 1, 10, 0, 0, 123456000, time.UTC)
	if got := timeFromUnix(unixFromTime(in)); !got.Equal(in) {
		t.Errorf("round trip = %v, want %v", got, in)
	}
}
