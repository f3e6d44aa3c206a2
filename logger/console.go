package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const isWindows = runtime.GOOS == "windows"

var noColor = os.Getenv("TERM") == "dumb" ||
	(!isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()))

func color(val string) string {
	if isWindows || noColor {
		return ""
	}
	return val
}

const (
	Reset       = "\033[0m"
	Red         = "\033[31m"
	Green       = "\033[32m"
	Magenta     = "\033[35m"
	BlueBold    = "\033[34;1m"
	MagentaBold = "\033[35;1m"
	RedBold     = "\033[31;1m"
	YellowBold  = "\033[33;1m"
	WhiteBold   = "\033[37;1m"
	CyanBold    = "\033[36;1m"
	Gray        = "\033[1;90m"
	Purple      = "\u001b[38;5;200m"
)

type levelColors struct {
	level   string
	message string
}

var palette = map[LogLevel]levelColors{
	LevelTrace: {CyanBold, Gray},
	LevelDebug: {BlueBold, Green},
	LevelInfo:  {YellowBold, WhiteBold},
	LevelWarn:  {MagentaBold, Magenta},
	LevelError: {RedBold, Red},
}

type consoleLogger struct {
	prefixes   []string
	metadata   map[string]interface{}
	sink       Sink
	logLevel   LogLevel
	timestamps bool
	mu         *sync.Mutex // shared by every clone writing to sink
}

var _ Logger = (*consoleLogger)(nil)

func (c *consoleLogger) clone() *consoleLogger {
	prefixes := make([]string, len(c.prefixes))
	copy(prefixes, c.prefixes)
	metadata := make(map[string]interface{}, len(c.metadata))
	for k, v := range c.metadata {
		metadata[k] = v
	}
	return &consoleLogger{
		prefixes:   prefixes,
		metadata:   metadata,
		sink:       c.sink,
		logLevel:   c.logLevel,
		timestamps: c.timestamps,
		mu:         c.mu,
	}
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *consoleLogger) WithPrefix(prefix string) Logger {
	l := c.clone()
	if !slices.Contains(l.prefixes, prefix) {
		l.prefixes = append(l.prefixes, prefix)
	}
	return l
}

func (c *consoleLogger) With(metadata map[string]interface{}) Logger {
	l := c.clone()
	for k, v := range metadata {
		l.metadata[k] = v
	}
	return l
}

func (c *consoleLogger) IsLevelEnabled(level LogLevel) bool {
	return level >= c.logLevel && level < LevelNone
}

func (c *consoleLogger) log(level LogLevel, msg string, args ...interface{}) {
	if !c.IsLevelEnabled(level) {
		return
	}
	colors := palette[level]
	var b strings.Builder
	if c.timestamps {
		b.WriteString(time.Now().Format(time.RFC3339Nano))
		b.WriteByte(' ')
	}
	name := level.String()
	b.WriteString(color(colors.level) + "[" + name + "]" + strings.Repeat(" ", 5-len(name)) + color(Reset) + " ")
	if len(c.prefixes) > 0 {
		b.WriteString(color(Purple) + strings.Join(c.prefixes, " ") + color(Reset) + " ")
	}
	b.WriteString(color(colors.message) + fmt.Sprintf(msg, args...) + color(Reset))
	if len(c.metadata) > 0 {
		if buf, err := json.Marshal(c.metadata); err == nil {
			b.WriteString(" " + color(Gray) + string(buf) + color(Reset))
		}
	}
	b.WriteByte('\n')
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.sink, b.String())
}

func (c *consoleLogger) Trace(msg string, args ...interface{}) {
	c.log(LevelTrace, msg, args...)
}

func (c *consoleLogger) Debug(msg string, args ...interface{}) {
	c.log(LevelDebug, msg, args...)
}

func (c *consoleLogger) Info(msg string, args ...interface{}) {
	c.log(LevelInfo, msg, args...)
}

func (c *consoleLogger) Warn(msg string, args ...interface{}) {
	c.log(LevelWarn, msg, args...)
}

func (c *consoleLogger) Error(msg string, args ...interface{}) {
	c.log(LevelError, msg, args...)
}

// NewConsoleLogger returns a new Logger instance which will log to stderr.
// Without an explicit level the level comes from FINANCECACHE_LOG_LEVEL.
func NewConsoleLogger(levels ...LogLevel) Logger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return NewSinkLogger(os.Stderr, level, false)
}

// NewSinkLogger returns a console formatted Logger writing to sink.
func NewSinkLogger(sink Sink, level LogLevel, timestamps bool) Logger {
	return &consoleLogger{
		metadata:   map[string]interface{}{},
		sink:       sink,
		logLevel:   level,
		timestamps: timestamps,
		mu:         &sync.Mutex{},
	}
}
