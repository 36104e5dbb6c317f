package logx

import (
	"bytes"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithSessionAddsField(t *testing.T) {
	capture := &logCapture{}
	log := WithSession(newCaptureLogger(capture), "s1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != "s1" {
		t.Fatalf("expected session field, got %+v", entry)
	}
}

func TestWithClientAddsFields(t *testing.T) {
	capture := &logCapture{}
	log := WithClient(WithSession(newCaptureLogger(capture), "s1"), "c1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != "s1" || entry["client"] != "c1" {
		t.Fatalf("expected session and client fields, got %+v", entry)
	}
}

func TestEmptyIDsAddNothing(t *testing.T) {
	capture := &logCapture{}
	log := WithClient(WithSession(newCaptureLogger(capture), ""), "")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["session"]; ok {
		t.Fatalf("did not expect session field, got %+v", entry)
	}
	if _, ok := entry["client"]; ok {
		t.Fatalf("did not expect client field, got %+v", entry)
	}
}

func TestOrDefaultNeverNil(t *testing.T) {
	if OrDefault(nil) == nil {
		t.Fatal("expected default logger")
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
