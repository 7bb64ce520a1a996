package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return &Logger{
		output:     buf,
		level:      DEBUG,
		component:  "test",
		fields:     make(map[string]interface{}),
		jsonFormat: true,
	}
}

// TestLogKeyValuePairs verifies trailing args become structured fields and
// the message text is emitted verbatim, percent signs included.
func TestLogKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.Info("cache hit rate at 95%", "business_id", "biz-1", "hits", 19)

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry.Message != "cache hit rate at 95%" {
		t.Errorf("message = %q, want it verbatim", entry.Message)
	}
	if entry.Fields["business_id"] != "biz-1" {
		t.Errorf("business_id field = %v", entry.Fields["business_id"])
	}
	if entry.Fields["hits"] != float64(19) {
		t.Errorf("hits field = %v", entry.Fields["hits"])
	}
}

// TestLogUnpairedArgs verifies args that do not pair up land under a
// single field and are never formatted into the message.
func TestLogUnpairedArgs(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.Warn("orphaned report", "report-42")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry.Message != "orphaned report" {
		t.Errorf("message = %q, want it verbatim", entry.Message)
	}
	args, ok := entry.Fields["args"].([]interface{})
	if !ok || len(args) != 1 || args[0] != "report-42" {
		t.Errorf("args field = %v, want [report-42]", entry.Fields["args"])
	}
}

// TestLogErrorPairValue verifies error values in key-value pairs flatten
// to their message string.
func TestLogErrorPairValue(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.Error("step degraded", "step", "inventory_snapshot", "error", errSentinel("store down"))

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry.Fields["error"] != "store down" {
		t.Errorf("error field = %v, want the message string", entry.Fields["error"])
	}
}

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

// TestLogLevelFilter verifies entries below the configured level are
// dropped entirely.
func TestLogLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)
	l.level = WARN

	l.Info("below threshold")
	if buf.Len() != 0 {
		t.Errorf("info entry written at warn level: %s", buf.String())
	}
}
