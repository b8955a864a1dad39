// Package reasonerconn assembles a checker.Workflow, a stateresolver.State
// and a policystore.Policy into a query the back-end deontic reasoner
// understands, submits it, and classifies the raw response into a
// ReasonerResponse. The actual reasoner is out of scope: this package only
// speaks whatever wire protocol the active policy names.
package reasonerconn

import (
	"context"

	"policy-reasoner/api/services/auditlog"
	"policy-reasoner/api/services/checker"
	"policy-reasoner/api/services/policystore"
	"policy-reasoner/api/services/stateresolver"
)

// ReasonerResponse is the classified outcome of one reasoner round-trip:
// whether the request was permitted, and any deny reasons the connector's
// DisclosurePolicy decided were safe to leak back to the caller.
type ReasonerResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// Connector is the full set of questions the deliberation service can put
// to a reasoner: may this task execute, may this dataset move, is this
// whole workflow admissible. logger is pre-bound to the request's audit
// reference so the connector can log the raw wire response without
// threading that reference through every call.
type Connector interface {
	ExecuteTask(ctx context.Context, logger auditlog.SessionLogger, policy policystore.Policy, state stateresolver.State, workflow checker.Workflow, task string) (ReasonerResponse, error)
	AccessDataRequest(ctx context.Context, logger auditlog.SessionLogger, policy policystore.Policy, state stateresolver.State, workflow checker.Workflow, data string, task *string) (ReasonerResponse, error)
	WorkflowValidationRequest(ctx context.Context, logger auditlog.SessionLogger, policy policystore.Policy, state stateresolver.State, workflow checker.Workflow) (ReasonerResponse, error)
}

// ConnectorContext self-describes a Connector implementation: the wire
// protocol it speaks, the base facts it always sends ahead of a policy,
// and a hash of those base facts so a client can tell whether the base
// facts it has cached are still current.
type ConnectorContext struct {
	Type         string `json:"type"`
	Version      string `json:"version"`
	BaseDefs     string `json:"baseDefs"`
	BaseDefsHash string `json:"baseDefsHash"`
}

// WithContext is implemented by connectors that can describe themselves.
type WithContext interface {
	Context() ConnectorContext
}

// DisclosurePolicy decides which violation identifiers returned by the
// reasoner are safe to leak back to the caller in ReasonerResponse.Errors.
// A deny verdict is still returned either way; this only controls how much
// of the reasoner's own reasoning is disclosed alongside it.
type DisclosurePolicy interface {
	Disclose(violationIDs []string) []string
}

// LeakNone discloses nothing: a denied request comes back with an empty
// Errors slice, regardless of what the reasoner reported.
type LeakNone struct{}

func (LeakNone) Disclose([]string) []string { return nil }

// LeakByPrefix discloses only the violation identifiers starting with
// Prefix, e.g. "pub-" naming facts the policy author marked as
// public-facing. Everything else is withheld.
type LeakByPrefix struct {
	Prefix string
}

func (p LeakByPrefix) Disclose(violationIDs []string) []string {
	out := make([]string, 0, len(violationIDs))
	for _, id := range violationIDs {
		if len(p.Prefix) == 0 || hasPrefix(id, p.Prefix) {
			out = append(out, id)
		}
	}
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
