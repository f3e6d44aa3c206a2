package logger

import "sync"

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
	Metadata  map[string]interface{}
}

type testLogStore struct {
	mu   sync.Mutex
	logs []TestLogEntry
}

// TestLogger records every entry in memory. Loggers derived with With or
// WithPrefix share the parent's record.
type TestLogger struct {
	metadata map[string]interface{}
	store    *testLogStore
}

var _ Logger = (*TestLogger)(nil)

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *TestLogger) WithPrefix(prefix string) Logger {
	return c
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{}, len(c.metadata)+len(metadata))
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	return &TestLogger{metadata: kv, store: c.store}
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool {
	return level < LevelNone
}

func (c *TestLogger) Log(level string, msg string, args ...interface{}) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.logs = append(c.store.logs, TestLogEntry{level, msg, args, c.metadata})
}

// Logs returns a copy of everything recorded so far.
func (c *TestLogger) Logs() []TestLogEntry {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	out := make([]TestLogEntry, len(c.store.logs))
	copy(out, c.store.logs)
	return out
}

func (c *TestLogger) Trace(msg string, args ...interface{}) {
	c.Log("TRACE", msg, args...)
}

func (c *TestLogger) Debug(msg string, args ...interface{}) {
	c.Log("DEBUG", msg, args...)
}

func (c *TestLogger) Info(msg string, args ...interface{}) {
	c.Log("INFO", msg, args...)
}

func (c *TestLogger) Warn(msg string, args ...interface{}) {
	c.Log("WARNING", msg, args...)
}

func (c *TestLogger) Error(msg string, args ...interface{}) {
	c.Log("ERROR", msg, args...)
}

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{store: &testLogStore{}}
}
