package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mcphub-dev/mcphub/internal/common"
)

func TestNewLogger_CreatesDirAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected logs directory to exist: %v", err)
	}
	if l.currentLogPath() == "" {
		t.Fatal("expected a current log path")
	}
}

func TestLogger_Log_WritesOneJSONLineWithRawMessage(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer l.Close()

	ev := common.NewEvent(common.EventToolCall, common.DirectionOutbound).
		WithServer("weather").
		WithTool("forecast").
		WithRawMessage(`{"jsonrpc":"2.0"}`)

	if err := l.Log(ev); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	data, err := os.ReadFile(l.currentLogPath())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := string(data); !contains(got, `"raw_message":"{\"jsonrpc\":\"2.0\"}"`) {
		t.Fatalf("expected raw_message in logged line, got %q", got)
	}
	if !contains(string(data), `"tool_name":"forecast"`) {
		t.Fatalf("expected tool_name in logged line, got %q", string(data))
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
