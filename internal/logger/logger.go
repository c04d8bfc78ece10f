// Package logger writes structured JSON log lines.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel maps a level name to a LogLevel, defaulting to INFO.
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Fields carries structured key/value pairs attached to an entry.
type Fields map[string]interface{}

// LogEntry is one written line.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
	Caller    string `json:"caller,omitempty"`
	Error     string `json:"error,omitempty"`
}

// sink serializes writes from a logger and all of its children.
type sink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(append(line, '\n'))
}

// Logger writes entries at or above its level. Children made with With share
// the parent's output.
type Logger struct {
	level LogLevel
	out   *sink
	base  Fields
	now   func() time.Time
}

// NewLogger writes to output, or stdout when output is nil.
func NewLogger(level string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{
		level: ParseLevel(level),
		out:   &sink{w: output},
		now:   time.Now,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLogger("FATAL", io.Discard)
}

// New opens the log destination for the given environment. Production writes
// to logs/app.log when the directory is writable and falls back to stdout.
func New(level, environment string) *Logger {
	var output io.Writer = os.Stdout

	if environment == "production" {
		if err := os.MkdirAll("logs", 0755); err == nil {
			if file, err := os.OpenFile("logs/app.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
				output = file
			}
		}
	}

	return NewLogger(level, output)
}

func (l *Logger) Level() LogLevel {
	return l.level
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields Fields) *Logger {
	child := *l
	child.base = merge(l.base, fields)
	return &child
}

func (l *Logger) WithFields(fields Fields) *EntryBuilder {
	return &EntryBuilder{logger: l, fields: merge(nil, fields)}
}

func (l *Logger) WithField(key string, value interface{}) *EntryBuilder {
	return l.WithFields(Fields{key: value})
}

func (l *Logger) WithError(err error) *EntryBuilder {
	return &EntryBuilder{logger: l, err: err}
}

func (l *Logger) Debug(message string) { l.write(LevelDebug, message, nil, nil) }
func (l *Logger) Info(message string)  { l.write(LevelInfo, message, nil, nil) }
func (l *Logger) Warn(message string)  { l.write(LevelWarn, message, nil, nil) }
func (l *Logger) Error(message string) { l.write(LevelError, message, nil, nil) }

// Fatal logs and exits with status 1.
func (l *Logger) Fatal(message string) {
	l.write(LevelFatal, message, nil, nil)
	os.Exit(1)
}

func (l *Logger) write(level LogLevel, message string, fields Fields, err error) {
	if l == nil || level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: l.now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    merge(l.base, fields),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if level >= LevelError {
		// write <- Logger or EntryBuilder method <- caller
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}

	line, jsonErr := json.Marshal(entry)
	if jsonErr != nil {
		// a field value that cannot be encoded; keep the message
		entry.Fields = Fields{"marshal_error": jsonErr.Error()}
		line, _ = json.Marshal(entry)
	}
	l.out.write(line)
}

// merge copies a and b into a new map; b wins. It returns nil when both are empty.
func merge(a, b Fields) Fields {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(Fields, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// EntryBuilder accumulates fields for a single entry.
type EntryBuilder struct {
	logger *Logger
	fields Fields
	err    error
}

func (b *EntryBuilder) WithField(key string, value interface{}) *EntryBuilder {
	if b.fields == nil {
		b.fields = make(Fields)
	}
	b.fields[key] = value
	return b
}

func (b *EntryBuilder) WithFields(fields Fields) *EntryBuilder {
	if b.fields == nil {
		b.fields = make(Fields, len(fields))
	}
	for k, v := range fields {
		b.fields[k] = v
	}
	return b
}

func (b *EntryBuilder) WithError(err error) *EntryBuilder {
	b.err = err
	return b
}

func (b *EntryBuilder) Debug(message string) { b.logger.write(LevelDebug, message, b.fields, b.err) }
func (b *EntryBuilder) Info(message string)  { b.logger.write(LevelInfo, message, b.fields, b.err) }
func (b *EntryBuilder) Warn(message string)  { b.logger.write(LevelWarn, message, b.fields, b.err) }
func (b *EntryBuilder) Error(message string) { b.logger.write(LevelError, message, b.fields, b.err) }

// Fatal logs and exits with status 1.
func (b *EntryBuilder) Fatal(message string) {
	b.logger.write(LevelFatal, message, b.fields, b.err)
	os.Exit(1)
}
