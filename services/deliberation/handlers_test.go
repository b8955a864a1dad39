package deliberation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"policy-reasoner/api/pkg/auth"
	"policy-reasoner/api/services/auditlog"
	"policy-reasoner/api/services/auditlog/auditlogmock"
	"policy-reasoner/api/services/checker"
	"policy-reasoner/api/services/ir"
	"policy-reasoner/api/services/policystore"
	"policy-reasoner/api/services/policystore/policystoremock"
	"policy-reasoner/api/services/reasonerconn"
	"policy-reasoner/api/services/stateresolver"
	"policy-reasoner/api/services/stateresolver/stateresolvermock"
)

func intp(v int) *int { return &v }

func node(task int, next int) ir.Edge {
	return ir.Edge{Kind: ir.EdgeNode, Task: &task, Next: intp(next)}
}

func stop() ir.Edge { return ir.Edge{Kind: ir.EdgeStop} }

func baseTable() ir.SymTable {
	return ir.SymTable{
		Tasks: map[int]ir.TaskDef{
			0: {Name: "fetch", Package: "weather", Version: "1.0.0", ReturnsVoid: true},
		},
		Funcs: map[ir.FuncID]ir.FuncDef{},
	}
}

func simpleWorkflow(id string) ir.Workflow {
	return ir.Workflow{
		ID:      id,
		EndUser: "alice",
		Table:   baseTable(),
		Graph: []ir.Edge{
			node(0, 1),
			stop(),
		},
	}
}

// fakeConnector is a hand-written reasonerconn.Connector test double:
// each method records that it was called and returns a pre-set response.
type fakeConnector struct {
	resp    reasonerconn.ReasonerResponse
	err     error
	calls   int
	lastTask string
	lastData string
}

func (f *fakeConnector) ExecuteTask(ctx context.Context, logger auditlog.SessionLogger, policy policystore.Policy, state stateresolver.State, workflow checker.Workflow, task string) (reasonerconn.ReasonerResponse, error) {
	f.calls++
	f.lastTask = task
	return f.resp, f.err
}

func (f *fakeConnector) AccessDataRequest(ctx context.Context, logger auditlog.SessionLogger, policy policystore.Policy, state stateresolver.State, workflow checker.Workflow, data string, task *string) (reasonerconn.ReasonerResponse, error) {
	f.calls++
	f.lastData = data
	if task != nil {
		f.lastTask = *task
	}
	return f.resp, f.err
}

func (f *fakeConnector) WorkflowValidationRequest(ctx context.Context, logger auditlog.SessionLogger, policy policystore.Policy, state stateresolver.State, workflow checker.Workflow) (reasonerconn.ReasonerResponse, error) {
	f.calls++
	return f.resp, f.err
}

func newTestService(store *policystoremock.StoreMock, resolver *stateresolvermock.ResolverMock, connector reasonerconn.Connector, audit *auditlogmock.LoggerMock) *Service {
	s := NewService(store, connector, resolver, audit, nil)
	n := 0
	s.NewUUID = func() string {
		n++
		return "ref-" + string(rune('0'+n))
	}
	return s
}

func authedRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	r := httptest.NewRequest(method, path, jsonReader(raw))
	ctx := auth.WithContext(r.Context(), auth.Context{Initiator: "alice"})
	return r.WithContext(ctx)
}

func jsonReader(b []byte) *bytesReader { return &bytesReader{b: b} }

// bytesReader is a minimal io.Reader over a byte slice, avoiding a direct
// bytes.Reader import collision with the handlers under test having none.
type bytesReader struct {
	b   []byte
	off int
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.off >= len(r.b) {
		return 0, errEOF
	}
	n := copy(p, r.b[r.off:])
	r.off += n
	return n, nil
}

var errEOF = io.EOF

func activePolicy() policystore.Policy {
	return policystore.Policy{Version: 3, Content: policystore.Content{ReasonerID: "eflint-json"}}
}

func TestHandleExecuteTask_Allow(t *testing.T) {
	store := &policystoremock.StoreMock{
		GetActiveMock: func(ctx context.Context) (policystore.Policy, error) { return activePolicy(), nil },
	}
	resolver := &stateresolvermock.ResolverMock{}
	connector := &fakeConnector{resp: reasonerconn.ReasonerResponse{Success: true}}
	audit := &auditlogmock.LoggerMock{}
	svc := newTestService(store, resolver, connector, audit)

	req := authedRequest(t, http.MethodPost, "/v1/deliberation/execute-task", ExecuteTaskRequest{
		UseCase:  "example-use-case",
		Workflow: simpleWorkflow("wf-1"),
		TaskID:   taskPC{uint64(ir.MainFunc), 0},
	})
	w := httptest.NewRecorder()
	svc.HandleExecuteTask(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var v Verdict
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if v.Kind != verdictAllow {
		t.Errorf("expected allow verdict, got %q", v.Kind)
	}
	if v.Reference == "" {
		t.Errorf("expected non-empty verdict reference")
	}
	if connector.calls != 1 {
		t.Errorf("expected exactly one connector call, got %d", connector.calls)
	}
	if connector.lastTask != "wf-1-main-0-task" {
		t.Errorf("unexpected task id passed to connector: %q", connector.lastTask)
	}
}

func TestHandleAccessData_DenyWithDisclosedReasons(t *testing.T) {
	store := &policystoremock.StoreMock{
		GetActiveMock: func(ctx context.Context) (policystore.Policy, error) { return activePolicy(), nil },
	}
	resolver := &stateresolvermock.ResolverMock{}
	connector := &fakeConnector{resp: reasonerconn.ReasonerResponse{Success: false, Errors: []string{"pub-no-consent"}}}
	audit := &auditlogmock.LoggerMock{}
	svc := newTestService(store, resolver, connector, audit)

	req := authedRequest(t, http.MethodPost, "/v1/deliberation/access-data", AccessDataRequest{
		UseCase:  "example-use-case",
		Workflow: simpleWorkflow("wf-1"),
		DataID:   "patients-2024",
	})
	w := httptest.NewRecorder()
	svc.HandleAccessData(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var v Verdict
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if v.Kind != verdictDeny {
		t.Errorf("expected deny verdict, got %q", v.Kind)
	}
	if len(v.ReasonsForDenial) != 1 || v.ReasonsForDenial[0] != "pub-no-consent" {
		t.Errorf("expected disclosed reason to pass through, got %v", v.ReasonsForDenial)
	}
	if connector.lastData != "patients-2024" {
		t.Errorf("expected data id to reach connector, got %q", connector.lastData)
	}
}

func TestHandleExecuteWorkflow_DenyWithHiddenReasons(t *testing.T) {
	store := &policystoremock.StoreMock{
		GetActiveMock: func(ctx context.Context) (policystore.Policy, error) { return activePolicy(), nil },
	}
	resolver := &stateresolvermock.ResolverMock{}
	connector := &fakeConnector{resp: reasonerconn.ReasonerResponse{Success: false, Errors: nil}}
	audit := &auditlogmock.LoggerMock{}
	svc := newTestService(store, resolver, connector, audit)

	req := authedRequest(t, http.MethodPost, "/v1/deliberation/execute-workflow", ExecuteWorkflowRequest{
		UseCase:  "example-use-case",
		Workflow: simpleWorkflow("wf-1"),
	})
	w := httptest.NewRecorder()
	svc.HandleExecuteWorkflow(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var v Verdict
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if v.Kind != verdictDeny {
		t.Errorf("expected deny verdict, got %q", v.Kind)
	}
	if len(v.ReasonsForDenial) != 0 {
		t.Errorf("expected no disclosed reasons, got %v", v.ReasonsForDenial)
	}
}

func TestHandleExecuteTask_UnknownUseCase(t *testing.T) {
	store := &policystoremock.StoreMock{
		GetActiveMock: func(ctx context.Context) (policystore.Policy, error) { return activePolicy(), nil },
	}
	resolver := &stateresolvermock.ResolverMock{
		ResolveMock: func(ctx context.Context, useCase string) (stateresolver.State, error) {
			return stateresolver.State{}, stateresolver.ErrUnknownUseCase
		},
	}
	connector := &fakeConnector{resp: reasonerconn.ReasonerResponse{Success: true}}
	audit := &auditlogmock.LoggerMock{}
	svc := newTestService(store, resolver, connector, audit)

	req := authedRequest(t, http.MethodPost, "/v1/deliberation/execute-task", ExecuteTaskRequest{
		UseCase:  "nonexistent",
		Workflow: simpleWorkflow("wf-1"),
		TaskID:   taskPC{uint64(ir.MainFunc), 0},
	})
	w := httptest.NewRecorder()
	svc.HandleExecuteTask(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if connector.calls != 0 {
		t.Errorf("expected connector never invoked for an unknown use case, got %d calls", connector.calls)
	}
	if len(audit.Entries) != 0 {
		t.Errorf("expected no audit entries for a request rejected before deliberation starts, got %d", len(audit.Entries))
	}
}

func TestHandleExecuteTask_Unauthenticated(t *testing.T) {
	store := &policystoremock.StoreMock{}
	resolver := &stateresolvermock.ResolverMock{}
	connector := &fakeConnector{resp: reasonerconn.ReasonerResponse{Success: true}}
	audit := &auditlogmock.LoggerMock{}
	svc := newTestService(store, resolver, connector, audit)

	raw, _ := json.Marshal(ExecuteTaskRequest{UseCase: "example-use-case", Workflow: simpleWorkflow("wf-1")})
	req := httptest.NewRequest(http.MethodPost, "/v1/deliberation/execute-task", jsonReader(raw))
	w := httptest.NewRecorder()
	svc.HandleExecuteTask(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	if connector.calls != 0 {
		t.Errorf("expected connector never invoked for an unauthenticated request, got %d calls", connector.calls)
	}
}

// TestAuditLogFailureIsFatal_OnStart covers the request-start log entry failing:
// the request must be rejected rather than proceeding unlogged.
func TestAuditLogFailureIsFatal_OnStart(t *testing.T) {
	store := &policystoremock.StoreMock{
		GetActiveMock: func(ctx context.Context) (policystore.Policy, error) { return activePolicy(), nil },
	}
	resolver := &stateresolvermock.ResolverMock{}
	connector := &fakeConnector{resp: reasonerconn.ReasonerResponse{Success: true}}
	audit := &auditlogmock.LoggerMock{LogErr: errors.New("disk full")}
	svc := newTestService(store, resolver, connector, audit)

	req := authedRequest(t, http.MethodPost, "/v1/deliberation/execute-task", ExecuteTaskRequest{
		UseCase:  "example-use-case",
		Workflow: simpleWorkflow("wf-1"),
		TaskID:   taskPC{uint64(ir.MainFunc), 0},
	})
	w := httptest.NewRecorder()
	svc.HandleExecuteTask(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when the request-start log entry fails to write, got %d: %s", w.Code, w.Body.String())
	}
	if connector.calls != 0 {
		t.Errorf("expected the reasoner never consulted once the audit log failed, got %d calls", connector.calls)
	}
}

// TestAuditLogFailureIsFatal_OnVerdict covers the verdict log entry
// failing after a successful reasoner round-trip: invariant 8 requires
// the verdict be durably logged before (or instead of) being returned.
func TestAuditLogFailureIsFatal_OnVerdict(t *testing.T) {
	store := &policystoremock.StoreMock{
		GetActiveMock: func(ctx context.Context) (policystore.Policy, error) { return activePolicy(), nil },
	}
	resolver := &stateresolvermock.ResolverMock{}
	connector := &fakeConnector{resp: reasonerconn.ReasonerResponse{Success: true}}
	audit := &auditlogmock.LoggerMock{}
	svc := newTestService(store, resolver, connector, audit)

	// Fail every Log call after the first (the request-start entry
	// succeeds, the verdict entry fails), via a counting decorator.
	countingAudit := &countingFailAfter{inner: audit, failAfter: 1}
	svc.Audit = countingAudit

	req := authedRequest(t, http.MethodPost, "/v1/deliberation/execute-task", ExecuteTaskRequest{
		UseCase:  "example-use-case",
		Workflow: simpleWorkflow("wf-1"),
		TaskID:   taskPC{uint64(ir.MainFunc), 0},
	})
	w := httptest.NewRecorder()
	svc.HandleExecuteTask(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when the verdict log entry fails to write, got %d: %s", w.Code, w.Body.String())
	}
	if countingAudit.calls < 2 {
		t.Errorf("expected both the start and verdict log attempts to occur, got %d", countingAudit.calls)
	}
}

// countingFailAfter wraps a Logger, succeeding the first failAfter Log
// calls and failing every call after that.
type countingFailAfter struct {
	inner     auditlog.Logger
	failAfter int
	calls     int
}

func (c *countingFailAfter) Log(reference string, kind auditlog.Kind, data any) error {
	c.calls++
	if c.calls > c.failAfter {
		return errors.New("disk full")
	}
	return c.inner.Log(reference, kind, data)
}

func (c *countingFailAfter) Session(reference string) auditlog.SessionLogger {
	return &countingSession{parent: c, reference: reference}
}

type countingSession struct {
	parent    *countingFailAfter
	reference string
}

func (s *countingSession) Log(kind auditlog.Kind, data any) error {
	return s.parent.Log(s.reference, kind, data)
}

func TestVerdictReferencesAreUnique(t *testing.T) {
	store := &policystoremock.StoreMock{
		GetActiveMock: func(ctx context.Context) (policystore.Policy, error) { return activePolicy(), nil },
	}
	resolver := &stateresolvermock.ResolverMock{}
	connector := &fakeConnector{resp: reasonerconn.ReasonerResponse{Success: true}}
	audit := &auditlogmock.LoggerMock{}
	svc := NewService(store, connector, resolver, audit, nil)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		req := authedRequest(t, http.MethodPost, "/v1/deliberation/execute-task", ExecuteTaskRequest{
			UseCase:  "example-use-case",
			Workflow: simpleWorkflow("wf-1"),
			TaskID:   taskPC{uint64(ir.MainFunc), 0},
		})
		w := httptest.NewRecorder()
		svc.HandleExecuteTask(w, req)

		var v Verdict
		if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
			t.Fatalf("decode verdict: %v", err)
		}
		if seen[v.Reference] {
			t.Fatalf("verdict reference %q reused across requests", v.Reference)
		}
		seen[v.Reference] = true
	}
}
