package ulogger

import (
	"sync"
	"testing"
)

// TestLogger is a no-op Logger for tests that do not care about log output.
type TestLogger struct{}

func (l TestLogger) LogLevel() int                                { return 0 }
func (l TestLogger) SetLogLevel(_ string)                         {}
func (l TestLogger) Debugf(format string, args ...interface{})    {}
func (l TestLogger) Infof(format string, args ...interface{})     {}
func (l TestLogger) Warnf(format string, args ...interface{})     {}
func (l TestLogger) Errorf(format string, args ...interface{})    {}
func (l TestLogger) Fatalf(format string, args ...interface{})    {}
func (l TestLogger) New(_ string, _ ...Option) Logger             { return l }
func (l TestLogger) Duplicate(_ ...Option) Logger                 { return l }

// VerboseTestLogger forwards everything to t.Logf so output shows up with -v.
type VerboseTestLogger struct {
	t     *testing.T
	mutex sync.Mutex
}

func NewVerboseTestLogger(t *testing.T) *VerboseTestLogger {
	return &VerboseTestLogger{t: t}
}

func (l *VerboseTestLogger) LogLevel() int { return 0 }

func (l *VerboseTestLogger) SetLogLevel(level string) {}

func (l *VerboseTestLogger) New(service string, options ...Option) Logger {
	return l
}

func (l *VerboseTestLogger) Duplicate(options ...Option) Logger {
	return l
}

func (l *VerboseTestLogger) Debugf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.t.Logf("[DEBUG] "+format, args...)
}

func (l *VerboseTestLogger) Infof(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.t.Logf("[INFO] "+format, args...)
}

func (l *VerboseTestLogger) Warnf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.t.Logf("[WARN] "+format, args...)
}

func (l *VerboseTestLogger) Errorf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.t.Logf("[ERROR] "+format, args...)
}

func (l *VerboseTestLogger) Fatalf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.t.Fatalf("[FATAL] "+format, args...)
}
