// Package cflog provides the small structured logger used throughout cfcore.
//
// Every constructor that takes diagnostics (cftask.NewTaskPool, cfnotify.New,
// cfcore.Initialize) accepts a *Logger and treats a nil *Logger as a discard logger, so callers
// that don't care about logging never have to construct one.
package cflog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a logging severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn", "warning":
		return Warn, nil
	case "error":
		return Error, nil
	default:
		return Info, fmt.Errorf("cflog: invalid level %q", s)
	}
}

// Format selects the wire shape of emitted entries.
type Format int

const (
	TextFormat Format = iota
	JSONFormat
)

type entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger is a minimal level-and-field structured logger.
//
// A nil *Logger is valid and discards everything; every method has a nil
// receiver guard so callers can pass a possibly-nil logger down without
// checking it first.
type Logger struct {
	mu        sync.Mutex
	level     Level
	format    Format
	output    io.Writer
	component string
}

// New creates a Logger. A nil output defaults to os.Stderr.
func New(level Level, format Format, output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}
	return &Logger{level: level, format: format, output: output}
}

// Default returns an Info-level, text-format logger writing to stderr.
func Default() *Logger {
	return New(Info, TextFormat, os.Stderr)
}

// WithComponent returns a derived logger tagging every entry with component.
func (l *Logger) WithComponent(component string) *Logger {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{level: l.level, format: l.format, output: l.output, component: component}
}

func (l *Logger) enabled(level Level) bool {
	return l != nil && level >= l.level
}

func (l *Logger) log(level Level, msg string, fields map[string]any) {
	if !l.enabled(level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e := entry{Timestamp: time.Now(), Level: level.String(), Component: l.component, Message: msg, Fields: fields}
	var line string
	switch l.format {
	case JSONFormat:
		b, _ := json.Marshal(e)
		line = string(b) + "\n"
	default:
		line = formatText(e)
	}
	_, _ = l.output.Write([]byte(line))
}

func formatText(e entry) string {
	var b strings.Builder
	b.WriteString(e.Timestamp.Format("2006-01-02T15:04:05.000"))
	b.WriteString(" [")
	b.WriteString(e.Level)
	b.WriteString("]")
	if e.Component != "" {
		b.WriteString(" ")
		b.WriteString(e.Component)
		b.WriteString(":")
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	for k, v := range e.Fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	b.WriteString("\n")
	return b.String()
}

func (l *Logger) Debugf(format string, args ...any) { l.log(Debug, fmt.Sprintf(format, args...), nil) }
func (l *Logger) Infof(format string, args ...any)  { l.log(Info, fmt.Sprintf(format, args...), nil) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(Warn, fmt.Sprintf(format, args...), nil) }
func (l *Logger) Errorf(format string, args ...any) { l.log(Error, fmt.Sprintf(format, args...), nil) }

// WithFields logs a single entry carrying structured key/value fields.
func (l *Logger) WithFields(level Level, msg string, fields map[string]any) {
	l.log(level, msg, fields)
}
