package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	diagLog        zerolog.Logger
	diagWriter     io.WriteCloser
	transcriptFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

// RequestMetrics is the timing breakdown of one remote model call.
type RequestMetrics struct {
	DNSTimeMs   float64
	ConnTimeMs  float64
	TLSTimeMs   float64
	TTFBMs      float64
	TotalTimeMs float64
	ConnReused  bool
	TLSProto    string
	RequestKB   float64
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: EARSHOT_LOG_PATH environment variable
	if envPath := os.Getenv("EARSHOT_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()
	closeWriters()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	transcriptPath := filepath.Join(dir, "transcript_log.txt")
	transcriptFile, err = os.OpenFile(transcriptPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	diagWriter = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "diagnostics_log.txt"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	// lumberjack opens lazily; touch the file so it exists right after Init.
	if _, err := diagWriter.Write(nil); err != nil {
		transcriptFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagWriter,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	closeWriters()
	logReady = false
}

func closeWriters() {
	if diagWriter != nil {
		diagWriter.Close()
		diagWriter = nil
	}
	if transcriptFile != nil {
		transcriptFile.Close()
		transcriptFile = nil
	}
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// Utterance appends one final utterance to transcript_log.txt.
func Utterance(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcriptFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcriptFile.WriteString(line)
}

func Request(model string, m RequestMetrics) {
	if !logReady {
		return
	}

	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}

	ev := diagLog.Info().
		Str("model", model).
		Str("conn", connStatus)
	if m.TLSProto != "" {
		ev = ev.Str("tls_proto", m.TLSProto)
	}
	ev.Float64("req_kb", m.RequestKB).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("conn_ms", m.ConnTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Msg("model_request")
}

func Classification(elapsed time.Duration, ok bool, reason string) {
	if !logReady {
		return
	}
	ev := diagLog.Info().
		Float64("ms", float64(elapsed.Microseconds())/1000).
		Bool("ok", ok)
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	ev.Msg("classification")
}

func TopicChange(topic, rel string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("topic", topic).
		Str("at", rel).
		Msg("topic_change")
}

func RecognizerRestart(attempt int, cause error) {
	if !logReady {
		return
	}
	ev := diagLog.Warn().Int("attempt", attempt)
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("recognizer_restart")
}

type StreamMetricsData struct {
	ConnectMs    float64
	TotalMs      float64
	AudioS       float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
}

func StreamMetrics(m StreamMetricsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Float64("connect_ms", m.ConnectMs).
		Float64("total_ms", m.TotalMs).
		Float64("audio_s", m.AudioS).
		Int("sent_chunks", m.SentChunks).
		Float64("sent_kb", m.SentKB).
		Int("recv_messages", m.RecvMessages).
		Int("recv_final", m.RecvFinal).
		Msg("recognition_stream")
}

func SessionStart(id, locale, format, device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("id", id).
		Str("locale", locale).
		Str("format", format).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(id string, utterances, topics, audioBytes int, status string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("id", id).
		Int("utterances", utterances).
		Int("topics", topics).
		Int("audio_bytes", audioBytes).
		Str("status", status).
		Msg("session_end")
}
