// Package auditlog provides an append-only record of every decision the
// deliberation service and policy store make: what was asked, what the
// reasoner was told, what it said back (in full, even on parse failure),
// and what verdict was returned. Entries are immutable once written.
package auditlog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// flushReportEvery controls how often writerLogger reports its
// cumulative write volume to slog: once every this many statements.
const flushReportEvery = 500

// Kind discriminates the statements the deliberation pipeline logs.
type Kind string

const (
	KindRequestStart     Kind = "request_start"
	KindReasonerContext  Kind = "reasoner_context"
	KindReasonerResponse Kind = "reasoner_response"
	KindReasonerVerdict  Kind = "reasoner_verdict"
	KindAddPolicyVersion Kind = "add_policy_version"
	KindSetActivePolicy  Kind = "set_active_policy"
)

// Statement is one audit-log entry. Data carries the kind-specific
// payload, already JSON-encodable (a raw response body, a verdict
// struct, a policy version number, ...).
type Statement struct {
	Reference string    `json:"reference"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Logger is what the deliberation service and policy store depend on: an
// append-only sink for Statements, plus a way to scope a sequence of
// statements to one verdict/session reference.
type Logger interface {
	Log(reference string, kind Kind, data any) error
	// Session returns a SessionLogger pre-bound to reference, so
	// collaborators several layers removed from the top-level request
	// handler (in particular the reasoner connector) don't need to
	// thread the reference through every call themselves.
	Session(reference string) SessionLogger
}

// SessionLogger is a Logger bound to a single reference.
type SessionLogger interface {
	Log(kind Kind, data any) error
}

// writerLogger implements Logger over an io.Writer, one JSON-encoded
// statement per line prefixed the way the reasoner's own Rust log lines
// were: "[policy-reasoner vN][RFC3339 timestamp] ".
type writerLogger struct {
	mu           sync.Mutex
	w            io.Writer
	version      string
	now          func() time.Time
	bytesWritten uint64
	entries      uint64
}

// New wraps w as a Logger. version is embedded in every line prefix
// (e.g. the service's own semantic version), and now is injectable for
// deterministic tests; pass nil to use time.Now.
func New(w io.Writer, version string, now func() time.Time) Logger {
	if now == nil {
		now = time.Now
	}
	return &writerLogger{w: w, version: version, now: now}
}

func (l *writerLogger) Log(reference string, kind Kind, data any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC()
	stmt := Statement{Reference: reference, Kind: kind, Timestamp: ts, Data: data}
	body, err := json.Marshal(stmt)
	if err != nil {
		return fmt.Errorf("auditlog: marshal statement: %w", err)
	}

	line := fmt.Sprintf("[policy-reasoner v%s][%s] %s\n", l.version, ts.Format(time.RFC3339Nano), body)
	if _, err := io.WriteString(l.w, line); err != nil {
		return fmt.Errorf("auditlog: write statement: %w", err)
	}

	l.bytesWritten += uint64(len(line))
	l.entries++
	if l.entries%flushReportEvery == 0 {
		slog.Info("audit log flush", "entries", l.entries, "size", humanize.Bytes(l.bytesWritten))
	}
	return nil
}

func (l *writerLogger) Session(reference string) SessionLogger {
	return &sessionLogger{parent: l, reference: reference}
}

type sessionLogger struct {
	parent    *writerLogger
	reference string
}

func (s *sessionLogger) Log(kind Kind, data any) error {
	return s.parent.Log(s.reference, kind, data)
}
