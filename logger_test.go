package kvmirror

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
)

// mockLogger captures log messages for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockLogger) Info(ctx context.Context, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, fmt.Sprintf("INFO: "+format, args...))
}

func (m *mockLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, fmt.Sprintf("WARN: "+format, args...))
}

func (m *mockLogger) Error(ctx context.Context, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, fmt.Sprintf("ERROR: "+format, args...))
}

func (m *mockLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, fmt.Sprintf("DEBUG: "+format, args...))
}

func (m *mockLogger) getMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.messages...)
}

func (m *mockLogger) contains(substring string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if strings.Contains(msg, substring) {
			return true
		}
	}
	return false
}

func TestWithLogger(t *testing.T) {
	logger := &mockLogger{}

	// Create store with error-prone mock driver
	d := newMockDriver()
	d.setFunc = func(ctx context.Context, key string, value []byte) error {
		return fmt.Errorf("mock set error")
	}

	s := New("test:", WithDriver(d), WithLogger(logger), WithPreload(false), WithSyncWrites())

	// Trigger an error
	_ = s.SetItem(context.Background(), "key1", String("value"))

	// Verify error was logged
	if !logger.contains("persist failed: set [test:key1]") {
		t.Errorf("Expected error log for set operation, got %v", logger.getMessages())
	}
}

func TestWithLogTag(t *testing.T) {
	logger := &mockLogger{}

	d := newMockDriver()
	d.keysFunc = func(ctx context.Context, prefix string) ([]string, error) {
		return nil, fmt.Errorf("mock keys error")
	}

	s := New("test:", WithDriver(d), WithLogger(logger), WithLogTag("[TestTag]"), WithPreload(false))
	defer s.Close(context.Background())

	_ = s.Restore(context.Background())

	// Verify log tag is present
	if !logger.contains("[TestTag]") {
		t.Error("Expected log tag in error message")
	}
	if !logger.contains("restore keys failed") {
		t.Error("Expected error log for restore")
	}
}

func TestLogger_SuccessfulOperationsStayQuiet(t *testing.T) {
	logger := &mockLogger{}
	s := New("test:", WithLogger(logger), WithPreload(false))
	ctx := context.Background()

	_ = s.SetItem(ctx, "k", String("v"))
	s.GetItem("k")
	_ = s.MultiSet(ctx, []Pair{{Key: "k2", Value: Number(1)}})
	_ = s.RemoveItem(ctx, "k")
	_ = s.MultiRemove(ctx, "k2")
	_ = s.Clear(ctx)
	_ = s.Flush(ctx)
	_ = s.Close(ctx)

	for _, msg := range logger.getMessages() {
		if strings.HasPrefix(msg, "ERROR") || strings.HasPrefix(msg, "WARN") {
			t.Errorf("Unexpected log message: %s", msg)
		}
	}
}

func TestLogfAllLevels(t *testing.T) {
	logger := &mockLogger{}
	s := New("test:", WithLogger(logger), WithLogTag("[TestTag]"), WithPreload(false))
	defer s.Close(context.Background())
	ctx := context.Background()

	s.logf("info", ctx, "info message")
	s.logf("warn", ctx, "warn message")
	s.logf("error", ctx, "error message")
	s.logf("debug", ctx, "debug message")

	messages := logger.getMessages()
	if len(messages) != 4 {
		t.Fatalf("Expected 4 log messages, got %d", len(messages))
	}
	for i, level := range []string{"INFO", "WARN", "ERROR", "DEBUG"} {
		if !strings.HasPrefix(messages[i], level) {
			t.Errorf("message %d = %q, want %s level", i, messages[i], level)
		}
	}
	if !logger.contains("[TestTag]") {
		t.Error("Expected log tag in messages")
	}
}

func TestDiscardLogger(t *testing.T) {
	logger := discardLogger{}
	ctx := context.Background()

	// These should not panic.
	logger.Info(ctx, "test")
	logger.Warn(ctx, "test")
	logger.Error(ctx, "test")
	logger.Debug(ctx, "test")
}

func TestLoggerNilSafety(t *testing.T) {
	// Passing nil logger should use default no-op
	s := New("test:", WithLogger(nil), WithPreload(false))
	defer s.Close(context.Background())

	if s.logger == nil {
		t.Fatal("nil logger should be ignored")
	}
	_ = s.SetItem(context.Background(), "key", String("value"))
}

func TestLogf_PercentInKey(t *testing.T) {
	logger := &mockLogger{}
	d := newMockDriver()
	d.setFunc = func(ctx context.Context, key string, value []byte) error {
		return fmt.Errorf("mock set error")
	}
	s := New("test:", WithDriver(d), WithLogger(logger), WithPreload(false), WithSyncWrites())

	_ = s.SetItem(context.Background(), "50%off", String("v"))

	if !logger.contains("persist failed: set [test:50%off]: mock set error") {
		t.Errorf("key with %% was not logged verbatim: %v", logger.getMessages())
	}
	for _, msg := range logger.getMessages() {
		if strings.Contains(msg, "%!") {
			t.Errorf("garbled log message: %s", msg)
		}
	}
}

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger(log.New(&buf, "", 0))
	ctx := context.Background()

	l.Info(ctx, "hello %s", "world")
	l.Debug(ctx, "hidden")
	l.Verbose = true
	l.Debug(ctx, "shown")
	l.Error(ctx, "boom")

	want := "INFO hello world\nDEBUG shown\nERROR boom\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}

	if NewStdLogger(nil).L == nil {
		t.Error("NewStdLogger(nil) should fall back to the standard logger")
	}
}
