package logger

import (
	"strings"
	"sync"
)

// TestLogger captures log messages so tests can assert on them.
type TestLogger struct {
	mu       sync.Mutex
	messages []LogMessage
	fields   map[string]interface{}
}

// LogMessage is a captured log entry.
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a TestLogger.
func NewTestLogger() *TestLogger {
	return &TestLogger{fields: make(map[string]interface{})}
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.messages = append(l.messages, LogMessage{Level: level, Message: msg, Fields: merged})
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

// WithField returns a derived logger carrying an extra field; messages still
// land in the parent's capture buffer.
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a derived logger carrying extra fields.
func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	derived := &derivedTestLogger{parent: l, fields: make(map[string]interface{}, len(fields))}
	for k, v := range fields {
		derived.fields[k] = v
	}
	return derived
}

// WithError returns a derived logger carrying an error field.
func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Messages returns a copy of all captured messages.
func (l *TestLogger) Messages() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// HasMessage reports whether any captured message at the given level
// contains the substring.
func (l *TestLogger) HasMessage(level, substring string) bool {
	for _, m := range l.Messages() {
		if m.Level == level && strings.Contains(m.Message, substring) {
			return true
		}
	}
	return false
}

// Clear discards all captured messages.
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}

// derivedTestLogger forwards to its parent with merged fields.
type derivedTestLogger struct {
	parent *TestLogger
	fields map[string]interface{}
}

func (d *derivedTestLogger) merge(fields map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(d.fields)+len(fields))
	for k, v := range d.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

func (d *derivedTestLogger) Debug(msg string) { d.parent.log("DEBUG", msg, d.fields) }
func (d *derivedTestLogger) Info(msg string)  { d.parent.log("INFO", msg, d.fields) }
func (d *derivedTestLogger) Warn(msg string)  { d.parent.log("WARN", msg, d.fields) }
func (d *derivedTestLogger) Error(msg string) { d.parent.log("ERROR", msg, d.fields) }

func (d *derivedTestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	d.parent.log("DEBUG", msg, d.merge(fields))
}

func (d *derivedTestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	d.parent.log("INFO", msg, d.merge(fields))
}

func (d *derivedTestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	d.parent.log("WARN", msg, d.merge(fields))
}

func (d *derivedTestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	d.parent.log("ERROR", msg, d.merge(fields))
}

func (d *derivedTestLogger) WithField(key string, value interface{}) Logger {
	return d.WithFields(map[string]interface{}{key: value})
}

func (d *derivedTestLogger) WithFields(fields map[string]interface{}) Logger {
	return &derivedTestLogger{parent: d.parent, fields: d.merge(fields)}
}

func (d *derivedTestLogger) WithError(err error) Logger {
	if err == nil {
		return d
	}
	return d.WithField("error", err.Error())
}
