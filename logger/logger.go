// Package logger is pixopt's leveled logger. It writes colourised lines to
// the console and plain lines to an optional log file.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"go.trai.ch/zerr"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelTags = [...]struct {
	tag   string
	color string
}{
	DEBUG: {"[DEBUG] ", colorGray},
	INFO:  {"[INFO]  ", colorReset},
	WARN:  {"[WARN]  ", colorYellow},
	ERROR: {"[ERROR] ", colorRed},
}

// String returns the lower-case level name.
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel maps a level name to a LogLevel. Unknown names fall back to INFO.
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG, true
	case "info", "":
		return INFO, true
	case "warn", "warning":
		return WARN, true
	case "error":
		return ERROR, true
	}
	return INFO, false
}

type Logger struct {
	console  [4]*log.Logger
	plain    [4]*log.Logger
	file     *os.File
	minLevel LogLevel
}

var (
	defaultLogger *Logger
	mu            sync.Mutex
)

const flags = log.Ldate | log.Ltime | log.Lshortfile

func newLogger(console, file io.Writer, level LogLevel) *Logger {
	l := &Logger{minLevel: level}
	for lvl, t := range levelTags {
		if console != nil {
			l.console[lvl] = log.New(console, t.color+t.tag+colorReset, flags)
		}
		if file != nil {
			l.plain[lvl] = log.New(file, t.tag, flags)
		}
	}
	return l
}

// current returns the active logger, creating a console-only one if Init
// was never called. Callers must hold mu.
func current() *Logger {
	if defaultLogger == nil {
		defaultLogger = newLogger(os.Stdout, nil, DEBUG)
	}
	return defaultLogger
}

// Init configures the logger. An empty filename logs to the console only;
// console=false logs to the file only.
func Init(filename string, console bool, level LogLevel) error {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
	}

	var (
		file     *os.File
		fileOut  io.Writer
		consoleW io.Writer
	)
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to open log file"), "path", filename)
		}
		file, fileOut = f, f
	}
	if console {
		consoleW = os.Stdout
	}
	if fileOut == nil && consoleW == nil {
		return zerr.New("no output destination specified")
	}

	defaultLogger = newLogger(consoleW, fileOut, level)
	defaultLogger.file = file
	return nil
}

// SetOutput redirects console output, mostly for tests.
func SetOutput(w io.Writer, level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = newLogger(w, nil, level)
}

// SetLevel sets the minimum level that is written.
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	current().minLevel = level
}

// Close closes the log file if one is open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
		defaultLogger.file = nil
		defaultLogger.plain = [4]*log.Logger{}
	}
}

func output(level LogLevel, msg string) {
	mu.Lock()
	l := current()
	minLevel := l.minLevel
	mu.Unlock()

	if level < minLevel {
		return
	}
	// depth 3: output -> Infof -> caller
	if c := l.console[level]; c != nil {
		c.Output(3, msg)
	}
	if p := l.plain[level]; p != nil {
		p.Output(3, msg)
	}
}

// Debug logs a debug message
func Debug(v ...any) { output(DEBUG, fmt.Sprint(v...)) }

// Debugf logs a formatted debug message
func Debugf(format string, v ...any) { output(DEBUG, fmt.Sprintf(format, v...)) }

// Info logs an info message
func Info(v ...any) { output(INFO, fmt.Sprint(v...)) }

// Infof logs a formatted info message
func Infof(format string, v ...any) { output(INFO, fmt.Sprintf(format, v...)) }

// Warn logs a warning message
func Warn(v ...any) { output(WARN, fmt.Sprint(v...)) }

// Warnf logs a formatted warning message
func Warnf(format string, v ...any) { output(WARN, fmt.Sprintf(format, v...)) }

// Error logs an error message
func Error(v ...any) { output(ERROR, fmt.Sprint(v...)) }

// Errorf logs a formatted error message
func Errorf(format string, v ...any) { output(ERROR, fmt.Sprintf(format, v...)) }

// Fatal logs an error message and exits the program
func Fatal(v ...any) {
	output(ERROR, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...any) {
	output(ERROR, fmt.Sprintf(format, v...))
	os.Exit(1)
}
