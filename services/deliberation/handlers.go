package deliberation

import (
	"errors"
	"io"
	"net/http"
	"time"

	"policy-reasoner/api/pkg/auth"
	"policy-reasoner/api/pkg/httpx"
	"policy-reasoner/api/services/auditlog"
	"policy-reasoner/api/services/checker"
	"policy-reasoner/api/services/compiler"
	"policy-reasoner/api/services/ir"
	"policy-reasoner/api/services/policystore"
	"policy-reasoner/api/services/reasonerconn"
	"policy-reasoner/api/services/stateresolver"
)

// pipelineStart runs the steps common to all three endpoints: authenticate,
// compile the submitted IR, fetch the use-case's state snapshot, fetch the
// active policy. It writes any error response itself and returns ok=false
// when the caller should stop.
func (s *Service) pipelineStart(w http.ResponseWriter, r *http.Request, useCase string, wf *ir.Workflow) (ac auth.Context, compiled *checker.Workflow, state stateresolver.State, policy policystore.Policy, ok bool) {
	ac, authed := auth.FromContext(r.Context())
	if !authed {
		httpx.WriteErrorJSON(w, "UNAUTHENTICATED", "no verified caller identity on request", http.StatusUnauthorized)
		return ac, nil, state, policy, false
	}

	compiled, err := compiler.Compile(wf)
	if err != nil {
		var cerr *compiler.Error
		status := http.StatusBadRequest
		if !errors.As(err, &cerr) {
			status = http.StatusInternalServerError
		}
		httpx.WriteErrorJSON(w, "INVALID_WORKFLOW", err.Error(), status)
		return ac, nil, state, policy, false
	}

	state, err = s.Resolver.Resolve(r.Context(), useCase)
	if err != nil {
		httpx.WriteErrorJSON(w, "UNKNOWN_USE_CASE", err.Error(), http.StatusBadRequest)
		return ac, nil, state, policy, false
	}

	policy, err = s.Store.GetActive(r.Context())
	if err != nil {
		httpx.WriteErrorJSON(w, "NO_ACTIVE_POLICY", "no active policy is configured", http.StatusInternalServerError)
		return ac, nil, state, policy, false
	}

	return ac, compiled, state, policy, true
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// logStart records the start-of-deliberation statement. A failure here is
// fatal to the request: the decision that follows would be unaccountable,
// so the request is rejected rather than proceeding silently unlogged.
func (s *Service) logStart(w http.ResponseWriter, reference string, data any) bool {
	if err := s.Audit.Log(reference, auditlog.KindRequestStart, data); err != nil {
		httpx.WriteErrorJSON(w, "AUDIT_LOG_FAILURE", "failed to record audit log entry", http.StatusInternalServerError)
		return false
	}
	return true
}

// HandleExecuteTask implements POST /v1/deliberation/execute-task.
func (s *Service) HandleExecuteTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := "error"
	defer func() { observeRequest("execute-task", start, outcome) }()

	raw, err := readBody(r)
	if err != nil {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", "failed to read request body", http.StatusBadRequest)
		return
	}
	req, err := decodeBody[ExecuteTaskRequest](raw)
	if err != nil {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", err.Error(), http.StatusBadRequest)
		return
	}

	// The task pointer is translated to its stable string form before the
	// IR is consumed by compilation, so it refers to the same task
	// regardless of how compilation renumbers or inlines edges.
	task := taskID(req.Workflow.ID, req.TaskID.toPC())

	ac, wf, state, policy, ok := s.pipelineStart(w, r, req.UseCase, &req.Workflow)
	if !ok {
		return
	}

	reference := s.NewUUID()
	if !s.logStart(w, reference, map[string]any{
		"endpoint":  "execute-task",
		"auth":      ac,
		"policy_id": policy.Version,
		"use_case":  req.UseCase,
		"task":      task,
	}) {
		return
	}
	session := s.Audit.Session(reference)

	resp, err := s.Connector.ExecuteTask(r.Context(), session, policy, state, *wf, task)
	outcome = s.respond(w, reference, resp, err)
}

// HandleAccessData implements POST /v1/deliberation/access-data.
func (s *Service) HandleAccessData(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := "error"
	defer func() { observeRequest("access-data", start, outcome) }()

	raw, err := readBody(r)
	if err != nil {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", "failed to read request body", http.StatusBadRequest)
		return
	}
	req, err := decodeBody[AccessDataRequest](raw)
	if err != nil {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", err.Error(), http.StatusBadRequest)
		return
	}

	var task *string
	if req.TaskID != nil {
		t := taskID(req.Workflow.ID, req.TaskID.toPC())
		task = &t
	}

	ac, wf, state, policy, ok := s.pipelineStart(w, r, req.UseCase, &req.Workflow)
	if !ok {
		return
	}

	reference := s.NewUUID()
	if !s.logStart(w, reference, map[string]any{
		"endpoint":  "access-data",
		"auth":      ac,
		"policy_id": policy.Version,
		"use_case":  req.UseCase,
		"data_id":   req.DataID,
		"task":      task,
	}) {
		return
	}
	session := s.Audit.Session(reference)

	resp, err := s.Connector.AccessDataRequest(r.Context(), session, policy, state, *wf, req.DataID, task)
	outcome = s.respond(w, reference, resp, err)
}

// HandleExecuteWorkflow implements POST /v1/deliberation/execute-workflow.
func (s *Service) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := "error"
	defer func() { observeRequest("execute-workflow", start, outcome) }()

	raw, err := readBody(r)
	if err != nil {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", "failed to read request body", http.StatusBadRequest)
		return
	}
	req, err := decodeBody[ExecuteWorkflowRequest](raw)
	if err != nil {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", err.Error(), http.StatusBadRequest)
		return
	}

	ac, wf, state, policy, ok := s.pipelineStart(w, r, req.UseCase, &req.Workflow)
	if !ok {
		return
	}

	reference := s.NewUUID()
	if !s.logStart(w, reference, map[string]any{
		"endpoint":  "execute-workflow",
		"auth":      ac,
		"policy_id": policy.Version,
		"use_case":  req.UseCase,
	}) {
		return
	}
	session := s.Audit.Session(reference)

	resp, err := s.Connector.WorkflowValidationRequest(r.Context(), session, policy, state, *wf)
	outcome = s.respond(w, reference, resp, err)
}

// respond translates a ReasonerResponse (or its transport error) into a
// Verdict and writes it. A reasoner transport failure is itself reported as
// an HTTP 200 carrying the error in the verdict body: the deliberation
// pipeline ran to completion even though the reasoner couldn't be reached,
// and a denied-for-transport-reasons verdict is still a complete answer.
// The returned string is the metrics outcome label: the verdict kind, or
// "error" if the verdict couldn't even be durably logged.
func (s *Service) respond(w http.ResponseWriter, reference string, resp reasonerconn.ReasonerResponse, connErr error) string {
	var verdict Verdict
	if connErr != nil {
		verdict = DenyVerdict(reference, []string{connErr.Error()})
	} else if resp.Success {
		verdict = AllowVerdict(reference)
	} else {
		verdict = DenyVerdict(reference, resp.Errors)
	}

	if err := s.Audit.Log(reference, auditlog.KindReasonerVerdict, verdict); err != nil {
		httpx.WriteErrorJSON(w, "AUDIT_LOG_FAILURE", "failed to record audit log entry", http.StatusInternalServerError)
		return "error"
	}
	_ = httpx.WriteJSON(w, http.StatusOK, verdict)
	return verdict.Kind
}
