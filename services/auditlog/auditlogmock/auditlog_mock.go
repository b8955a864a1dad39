// Package auditlogmock provides an in-memory services/auditlog.Logger
// for tests that need to assert on what was logged without writing to a
// real sink.
package auditlogmock

import (
	"sync"

	"policy-reasoner/api/services/auditlog"
)

type Entry struct {
	Reference string
	Kind      auditlog.Kind
	Data      any
}

type LoggerMock struct {
	mu      sync.Mutex
	Entries []Entry

	// LogErr, when set, is returned by every Log call instead of
	// recording the entry, for exercising audit-log-failure handling.
	LogErr error
}

func (m *LoggerMock) Log(reference string, kind auditlog.Kind, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LogErr != nil {
		return m.LogErr
	}
	m.Entries = append(m.Entries, Entry{Reference: reference, Kind: kind, Data: data})
	return nil
}

func (m *LoggerMock) Session(reference string) auditlog.SessionLogger {
	return &sessionMock{parent: m, reference: reference}
}

type sessionMock struct {
	parent    *LoggerMock
	reference string
}

func (s *sessionMock) Log(kind auditlog.Kind, data any) error {
	return s.parent.Log(s.reference, kind, data)
}
