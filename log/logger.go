package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a leveled logger writing to the terminal and an optional rotated file.
// Children created with Named or With share the writer and the level.
type Logger struct {
	out *output

	Name   string
	fields []field
}

type LoggerRotation struct {
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type LoggerOptions struct {
	Level      LogLevel
	File       string
	NoTerminal bool
	NoColor    bool
	JSON       bool
	TimeFormat string
	Rotation   *LoggerRotation
	// Writer replaces the terminal output, mostly for tests.
	Writer io.Writer
}

type output struct {
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
	level  atomic.Int32

	timeFormat string
	color      bool
	json       bool
}

type field struct {
	key   string
	value any
}

type logEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Service   string         `json:"service,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func NewLogger(name string, level LogLevel, file string, noTerminal bool) *Logger {
	return NewLoggerWithOptions(name, LoggerOptions{
		Level:      level,
		File:       file,
		NoTerminal: noTerminal,
	})
}

func NewLoggerWithOptions(name string, opts LoggerOptions) *Logger {
	if opts.TimeFormat == "" {
		opts.TimeFormat = "2006-01-02 15:04:05"
	}
	if opts.Rotation == nil {
		opts.Rotation = &LoggerRotation{
			MaxSize:    128,
			MaxBackups: 5,
			MaxAge:     16,
			Compress:   false,
		}
	}

	out := &output{
		timeFormat: opts.TimeFormat,
		json:       opts.JSON,
	}
	out.level.Store(int32(opts.Level))

	var writers []io.Writer
	terminal := !opts.NoTerminal
	if terminal {
		if opts.Writer != nil {
			writers = append(writers, opts.Writer)
		} else {
			writers = append(writers, os.Stdout)
		}
	}

	if opts.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.Rotation.MaxSize,
			MaxBackups: opts.Rotation.MaxBackups,
			MaxAge:     opts.Rotation.MaxAge,
			Compress:   opts.Rotation.Compress,
		}
		writers = append(writers, fileWriter)
		out.closer = fileWriter
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	// Escape codes would end up in the rotated file as well.
	out.color = terminal && !opts.NoColor && !opts.JSON && opts.File == "" && opts.Writer == nil
	out.writer = io.MultiWriter(writers...)

	return &Logger{
		out:  out,
		Name: name,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLoggerWithOptions("", LoggerOptions{
		Level:  Fatal + 1,
		Writer: io.Discard,
	})
}

func (l *Logger) Level() LogLevel {
	return LogLevel(l.out.level.Load())
}

func (l *Logger) SetLevel(level LogLevel) {
	l.out.level.Store(int32(level))
}

func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.Level()
}

// Close releases the rotated log file, if any.
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.closer != nil {
		return l.out.closer.Close()
	}
	return nil
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}

	timestamp := time.Now().Format(l.out.timeFormat)
	formattedMsg := msg
	if len(args) > 0 {
		formattedMsg = fmt.Sprintf(msg, args...)
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.json {
		entry := logEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Service:   l.Name,
			Message:   formattedMsg,
		}
		if len(l.fields) > 0 {
			entry.Fields = make(map[string]any, len(l.fields))
			for _, f := range l.fields {
				entry.Fields[f.key] = f.value
			}
		}

		jsonBytes, _ := json.Marshal(entry)
		fmt.Fprintf(l.out.writer, "%s\n", jsonBytes)
	} else {
		prefix := fmt.Sprintf("[%s] %-5s", timestamp, level)
		if l.Name != "" {
			prefix = fmt.Sprintf("%s [%s]", prefix, l.Name)
		}

		suffix := l.formatFields()
		if l.out.color {
			fmt.Fprintf(l.out.writer, "%s%s %s%s%s\n", level.ansi(), prefix, formattedMsg, suffix, colorReset)
		} else {
			fmt.Fprintf(l.out.writer, "%s %s%s\n", prefix, formattedMsg, suffix)
		}
	}

	if level == Fatal {
		os.Exit(1)
	}
}

func (l *Logger) formatFields() string {
	if len(l.fields) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, f := range l.fields {
		fmt.Fprintf(&sb, " %s=%v", f.key, f.value)
	}
	return sb.String()
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(Debug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(Info, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(Warn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(Error, msg, args...)
}

func (l *Logger) Fatal(msg string, args ...any) {
	l.log(Fatal, msg, args...)
}

// Named returns a child logger with name appended to the service name.
func (l *Logger) Named(name string) *Logger {
	child := l.clone()
	if l.Name == "" {
		child.Name = name
	} else {
		child.Name = fmt.Sprintf("%s/%s", l.Name, name)
	}
	return child
}

// With returns a child logger that appends key=value to every line.
func (l *Logger) With(key string, value any) *Logger {
	child := l.clone()
	child.fields = append(child.fields, field{key: key, value: value})
	return child
}

func (l *Logger) clone() *Logger {
	fields := make([]field, len(l.fields), len(l.fields)+1)
	copy(fields, l.fields)

	return &Logger{
		out:    l.out, // Share the same writer and level
		Name:   l.Name,
		fields: fields,
	}
}
