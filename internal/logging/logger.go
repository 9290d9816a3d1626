// Package logging provides the structured logger shared by the snapshot
// pipeline, the API server and the command line tools.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

func (l LogLevel) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	case LevelFatal:
		return 4
	}
	return 1
}

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Fields is a set of structured key/value pairs attached to a log line
type Fields map[string]interface{}

// sink is shared by a logger and every logger derived from it
type sink struct {
	mu  sync.Mutex
	out io.Writer
}

// Logger provides structured logging. Derived loggers (WithField and friends)
// share level and output with their parent but carry their own fields.
type Logger struct {
	level  LogLevel
	format LogFormat
	sink   *sink
	fields Fields
	exit   func(int)
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
	Caller    string `json:"caller,omitempty"`
}

// NewLogger creates a new logger writing to stdout
func NewLogger(level LogLevel, format LogFormat) *Logger {
	return &Logger{
		level:  level,
		format: format,
		sink:   &sink{out: os.Stdout},
		fields: Fields{},
		exit:   os.Exit,
	}
}

func (l *Logger) derive(extra Fields) *Logger {
	fields := make(Fields, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &Logger{level: l.level, format: l.format, sink: l.sink, fields: fields, exit: l.exit}
}

// WithField returns a logger carrying key=value
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(Fields{key: value})
}

// WithFields returns a logger carrying all given fields
func (l *Logger) WithFields(fields Fields) *Logger {
	return l.derive(fields)
}

// WithError returns a logger carrying the error message
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.derive(Fields{"error": err.Error()})
}

func (l *Logger) Debug(message string) { l.log(LevelDebug, message) }
func (l *Logger) Info(message string)  { l.log(LevelInfo, message) }
func (l *Logger) Warn(message string)  { l.log(LevelWarn, message) }
func (l *Logger) Error(message string) { l.log(LevelError, message) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

// Fatal logs and terminates the process
func (l *Logger) Fatal(message string) {
	l.log(LevelFatal, message)
	l.exit(1)
}

// Fatalf logs a formatted message and terminates the process
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(LevelFatal, fmt.Sprintf(format, args...))
	l.exit(1)
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	return level.rank() >= l.level.rank()
}

func (l *Logger) log(level LogLevel, message string) {
	if !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Message:   message,
		Fields:    l.fields,
	}

	if level.rank() >= LevelError.rank() {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	var line string
	if l.format == FormatJSON {
		b, err := json.Marshal(entry)
		if err != nil {
			// unencodable field value; keep the message
			entry.Fields = Fields{"marshal_error": err.Error()}
			b, _ = json.Marshal(entry)
		}
		line = string(b)
	} else {
		line = formatText(entry)
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	fmt.Fprintln(l.sink.out, line)
}

// formatText renders "ts LEVEL message k=v k=v" with keys sorted
func formatText(entry LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", entry.Timestamp, strings.ToUpper(entry.Level), entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}

	if entry.Caller != "" {
		fmt.Fprintf(&b, " caller=%s", entry.Caller)
	}
	return b.String()
}

// SetOutput redirects this logger and all loggers derived from it
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.out = w
}

// SetLevel sets the minimum level written
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(level LogLevel, format LogFormat) *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = NewLogger(level, format)
	return globalLogger
}

// GetGlobalLogger returns the global logger, creating an info/json one if unset
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	return InitGlobalLogger(LevelInfo, FormatJSON)
}

type loggerKey struct{}

// WithLogger stores a logger in the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the context logger, or the global one
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
			return logger
		}
	}
	return GetGlobalLogger()
}

func Info(message string)                      { GetGlobalLogger().log(LevelInfo, message) }
func Infof(format string, args ...interface{}) { GetGlobalLogger().Infof(format, args...) }
func Warn(message string)                      { GetGlobalLogger().log(LevelWarn, message) }
func Warnf(format string, args ...interface{}) { GetGlobalLogger().Warnf(format, args...) }
func Error(message string)                     { GetGlobalLogger().log(LevelError, message) }
func Fatalf(format string, args ...interface{}) {
	GetGlobalLogger().Fatalf(format, args...)
}

// WithField derives from the global logger
func WithField(key string, value interface{}) *Logger {
	return GetGlobalLogger().WithField(key, value)
}

// WithFields derives from the global logger
func WithFields(fields Fields) *Logger {
	return GetGlobalLogger().WithFields(fields)
}

// WithError derives from the global logger
func WithError(err error) *Logger {
	return GetGlobalLogger().WithError(err)
}

// ParseLogLevel parses a string into a LogLevel, defaulting to info
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		log.Printf("Unknown log level '%s', defaulting to 'info'", level)
		return LevelInfo
	}
}

// ParseLogFormat parses a string into a LogFormat, defaulting to json
func ParseLogFormat(format string) LogFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "":
		return FormatJSON
	case "text":
		return FormatText
	default:
		log.Printf("Unknown log format '%s', defaulting to 'json'", format)
		return FormatJSON
	}
}
