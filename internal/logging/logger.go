// =============================================================================
// QBO Sales Receipt Extractor - Logging
// =============================================================================
//
// This module builds the logrus logger shared by every component of a run.
//
// FORMAT:
//   [2024-06-01 14:30:22] [a1b2c3d4] [info ] access token refreshed expires_at=...
//
//   The bracketed id is the run id; every line of one run carries the same
//   one, so interleaved runs stay apart in a shared log file.
//
// OUTPUTS:
//   - stderr, always
//   - a size-rotated file (lumberjack) when log_file is set
//
// Secrets never reach the logger: credentials are logged through their
// redacting String method and token endpoint errors without their body.
//
// =============================================================================

package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RunIDField is the entry field holding the run id.
const RunIDField = "run_id"

// fieldOrder is the display order of common fields. Other fields follow in
// name order.
var fieldOrder = []string{"receipt_id", "block", "sku", "start", "count", "retry", "delay", "reason", "error"}

// LogFormatter renders entries as single text lines.
type LogFormatter struct {
	// ReportCaller prints file:line when the logger records callers.
	ReportCaller bool
}

// Format renders a single log entry.
func (m *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	buffer := entry.Buffer
	if buffer == nil {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	runID := "--------"
	if id, ok := entry.Data[RunIDField].(string); ok && id != "" {
		runID = id
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	var fields []string
	seen := map[string]bool{RunIDField: true}
	for _, k := range fieldOrder {
		if v, ok := entry.Data[k]; ok {
			fields = append(fields, fmt.Sprintf("%s=%v", k, v))
			seen[k] = true
		}
	}
	var rest []string
	for k := range entry.Data {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		fields = append(fields, fmt.Sprintf("%s=%v", k, entry.Data[k]))
	}
	fieldsStr := ""
	if len(fields) > 0 {
		fieldsStr = " " + strings.Join(fields, " ")
	}

	if m.ReportCaller && entry.Caller != nil {
		fmt.Fprintf(buffer, "[%s] [%s] [%-5s] [%s:%d] %s%s\n", timestamp, runID, level, filepath.Base(entry.Caller.File), entry.Caller.Line, message, fieldsStr)
	} else {
		fmt.Fprintf(buffer, "[%s] [%s] [%-5s] %s%s\n", timestamp, runID, level, message, fieldsStr)
	}
	return buffer.Bytes(), nil
}

// =============================================================================
// SETUP
// =============================================================================

// Options configures Setup.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Default: "info"
	Level string

	// Verbose forces the debug level and caller reporting.
	Verbose bool

	// File enables a rotating log file.
	File string

	// Stderr overrides the console writer. Default: os.Stderr
	Stderr io.Writer
}

// Logger is the logger of one run.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

// Setup creates a configured logger. Close it to release the log file.
//
// RETURNS:
//   - The logger.
//   - An error if the level is unknown or the log directory cannot be created.
func Setup(opts Options) (*Logger, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = parsed
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	l := &Logger{Logger: logrus.New()}
	l.SetLevel(level)
	l.SetReportCaller(opts.Verbose)
	l.SetFormatter(&LogFormatter{ReportCaller: opts.Verbose})

	out := stderr
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
		}
		out = io.MultiWriter(stderr, l.file)
	}
	l.SetOutput(out)
	return l, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// NewRunID returns a short random id for RunIDField.
func NewRunID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
