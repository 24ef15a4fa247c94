package logger

import (
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// chainPrefixes maps registry chain names to log tags
var chainPrefixes = map[string]string{
	"ethereum":  "[ETH]  ",
	"base":      "[BASE] ",
	"arbitrum":  "[ARB]  ",
	"polygon":   "[POL]  ",
	"avalanche": "[AVA]  ",
	"bitcoin":   "[BTC]  ",
	"litecoin":  "[LTC]  ",
	"icp":       "[ICP]  ",
}

var chainColors = map[string]color.Attribute{
	"ethereum":  color.FgHiGreen,
	"base":      color.FgBlue,
	"arbitrum":  color.FgHiBlue,
	"polygon":   color.FgMagenta,
	"avalanche": color.FgRed,
	"bitcoin":   color.FgYellow,
	"litecoin":  color.FgWhite,
	"icp":       color.FgCyan,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithChain(chain string, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithChain(chain string, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithChain(chain string, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithChain(chain string, format string, args ...interface{})
}

// EmptyLogger is a Logger implementation that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                      {}
func (l *EmptyLogger) InfoWithChain(_ string, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                     {}
func (l *EmptyLogger) ErrorWithChain(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                     {}
func (l *EmptyLogger) DebugWithChain(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                    {}
func (l *EmptyLogger) NoticeWithChain(_ string, _ string, _ ...interface{}) {}

// StdLogger logs messages to the console with optional chain coloring.
type StdLogger struct {
	enableColoring bool
	level          Level
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
	}
}

// formatMessage prepends the log level and chain tag, colored if enabled.
func (l *StdLogger) formatMessage(level Level, chain string, format string) string {
	chainPrefix := chainPrefixes[strings.ToLower(chain)]
	if chainPrefix == "" && chain != "" {
		chainPrefix = "[" + strings.ToUpper(chain) + "] "
	}
	if l.enableColoring && chainPrefix != "" {
		if attr, ok := chainColors[strings.ToLower(chain)]; ok {
			chainPrefix = color.New(attr).Sprint(chainPrefix)
		}
	}

	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}

	return levelStr + chainPrefix + format
}

func (l *StdLogger) logAt(level Level, chain string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= level {
		log.Printf(l.formatMessage(level, chain, format), args...)
	}
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.logAt(InfoLevel, "", format, args...)
}

func (l *StdLogger) InfoWithChain(chain string, format string, args ...interface{}) {
	l.logAt(InfoLevel, chain, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.logAt(ErrorLevel, "", format, args...)
}

func (l *StdLogger) ErrorWithChain(chain string, format string, args ...interface{}) {
	l.logAt(ErrorLevel, chain, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.logAt(DebugLevel, "", format, args...)
}

func (l *StdLogger) DebugWithChain(chain string, format string, args ...interface{}) {
	l.logAt(DebugLevel, chain, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.logAt(NoticeLevel, "", format, args...)
}

func (l *StdLogger) NoticeWithChain(chain string, format string, args ...interface{}) {
	l.logAt(NoticeLevel, chain, format, args...)
}
