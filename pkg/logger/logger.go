package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var logLevelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// ParseLevel maps a config string to a LogLevel. Unknown values fall back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

type Logger struct {
	level   LogLevel
	console *log.Logger
	file    *dailyFile
	mu      sync.Mutex
}

var defaultLogger = NewLogger(INFO, os.Stdout)

// NewLogger creates a new Logger instance
func NewLogger(level LogLevel, output io.Writer) *Logger {
	return &Logger{
		level:   level,
		console: log.New(output, "", log.Ldate|log.Ltime),
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects console output, mostly useful in tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = log.New(w, "", log.Ldate|log.Ltime)
}

// EnableFileLogging mirrors every line into directory/eth-swap_<date>.log,
// switching to a new file when the UTC date changes.
func (l *Logger) EnableFileLogging(directory string) error {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.close()
	}
	l.file = &dailyFile{dir: directory, now: time.Now}
	return l.file.rotate()
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.close()
	l.file = nil
	return err
}

// depth is the number of frames between the caller and output.
func (l *Logger) output(depth int, level LogLevel, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	_, file, line, _ := runtime.Caller(depth)
	logMsg := fmt.Sprintf("[%s] [%s:%d] %s", level, filepath.Base(file), line, fmt.Sprintf(format, v...))

	l.console.Println(logMsg)
	if l.file != nil {
		if err := l.file.write(logMsg); err != nil {
			l.console.Printf("[%s] log file write failed: %v", ERROR, err)
		}
	}

	if level == FATAL {
		if l.file != nil {
			l.file.close()
		}
		os.Exit(1)
	}
}

func (l *Logger) Debug(format string, v ...interface{}) { l.output(2, DEBUG, format, v...) }
func (l *Logger) Info(format string, v ...interface{})  { l.output(2, INFO, format, v...) }
func (l *Logger) Warn(format string, v ...interface{})  { l.output(2, WARN, format, v...) }
func (l *Logger) Error(format string, v ...interface{}) { l.output(2, ERROR, format, v...) }

// Fatal logs and exits with status 1.
func (l *Logger) Fatal(format string, v ...interface{}) { l.output(2, FATAL, format, v...) }

// Errorf logs the wrapped error and returns it.
func (l *Logger) Errorf(err error, format string, v ...interface{}) error {
	wrapped := fmt.Errorf("%s: %w", fmt.Sprintf(format, v...), err)
	l.output(2, ERROR, "%s", wrapped.Error())
	return wrapped
}

type dailyFile struct {
	dir  string
	now  func() time.Time
	day  string
	file *os.File
	log  *log.Logger
}

func (d *dailyFile) rotate() error {
	day := d.now().UTC().Format("2006-01-02")
	if d.file != nil && day == d.day {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(d.dir, fmt.Sprintf("eth-swap_%s.log", day)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	d.close()
	d.day = day
	d.file = f
	d.log = log.New(f, "", log.Ldate|log.Ltime|log.LUTC)
	return nil
}

func (d *dailyFile) write(msg string) error {
	if err := d.rotate(); err != nil {
		return err
	}
	d.log.Println(msg)
	return nil
}

func (d *dailyFile) close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// Package-level functions log through the default logger.

func SetLevel(level LogLevel)                  { defaultLogger.SetLevel(level) }
func SetOutput(w io.Writer)                    { defaultLogger.SetOutput(w) }
func EnableFileLogging(directory string) error { return defaultLogger.EnableFileLogging(directory) }
func Close() error                             { return defaultLogger.Close() }
func Debug(format string, v ...interface{})    { defaultLogger.output(2, DEBUG, format, v...) }
func Info(format string, v ...interface{})     { defaultLogger.output(2, INFO, format, v...) }
func Warn(format string, v ...interface{})     { defaultLogger.output(2, WARN, format, v...) }
func Error(format string, v ...interface{})    { defaultLogger.output(2, ERROR, format, v...) }
func Fatal(format string, v ...interface{})    { defaultLogger.output(2, FATAL, format, v...) }

func Errorf(err error, format string, v ...interface{}) error {
	wrapped := fmt.Errorf("%s: %w", fmt.Sprintf(format, v...), err)
	defaultLogger.output(2, ERROR, "%s", wrapped.Error())
	return wrapped
}
