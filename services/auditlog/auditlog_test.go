package auditlog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLogWritesPrefixedLine(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	logger := New(&buf, "3", func() time.Time { return fixed })

	if err := logger.Log("verdict-1", KindRequestStart, map[string]string{"task": "x"}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	line := buf.String()
	if !strings.HasPrefix(line, "[policy-reasoner v3][2026-01-02T03:04:05Z] ") {
		t.Fatalf("unexpected line prefix: %s", line)
	}

	jsonPart := strings.TrimPrefix(line, "[policy-reasoner v3][2026-01-02T03:04:05Z] ")
	var stmt Statement
	if err := json.Unmarshal([]byte(jsonPart), &stmt); err != nil {
		t.Fatalf("unmarshal statement: %v", err)
	}
	if stmt.Reference != "verdict-1" || stmt.Kind != KindRequestStart {
		t.Errorf("unexpected statement: %+v", stmt)
	}
}

func TestSessionBindsReference(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "3", func() time.Time { return time.Unix(0, 0) })
	session := logger.Session("verdict-2")

	if err := session.Log(KindReasonerResponse, "raw body"); err != nil {
		t.Fatalf("Log: %v", err)
	}

	if !strings.Contains(buf.String(), `"reference":"verdict-2"`) {
		t.Errorf("expected session-bound reference in output, got %s", buf.String())
	}
}
