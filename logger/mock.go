package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock implementing Logger.
//
// Expectations name the level method: On("Warn", msg, mock.Anything). The
// key/value pairs arrive as a single []any argument. With returns the mock
// itself, so expectations also cover child loggers.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

// NewMockLogger returns a MockLogger with no expectations.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) record(method string, msg string, kv []any) {
	m.MethodCalled(method, msg, kv)
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) { m.record("Debug", msg, keysAndValues) }
func (m *MockLogger) Info(msg string, keysAndValues ...any)  { m.record("Info", msg, keysAndValues) }
func (m *MockLogger) Warn(msg string, keysAndValues ...any)  { m.record("Warn", msg, keysAndValues) }
func (m *MockLogger) Error(msg string, keysAndValues ...any) { m.record("Error", msg, keysAndValues) }

// Fatal records the call without exiting.
func (m *MockLogger) Fatal(msg string, keysAndValues ...any) { m.record("Fatal", msg, keysAndValues) }

func (m *MockLogger) SetLevel(level Level) {
	m.MethodCalled("SetLevel", level)
}

// Level returns the level configured with On("Level").Return(level).
func (m *MockLogger) Level() Level {
	level, _ := m.MethodCalled("Level").Get(0).(Level)
	return level
}

func (m *MockLogger) With(...any) Logger {
	return m
}
