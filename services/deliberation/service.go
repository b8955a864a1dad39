// Package deliberation implements the three HTTP endpoints the workflow
// runtime calls to ask whether a task may run, a dataset may move, or a
// whole workflow is admissible. Each endpoint runs the same pipeline:
// authenticate, compile the submitted IR, fetch state and active policy,
// mint a verdict reference, invoke the reasoner connector under a
// sessioned audit logger, and respond with a signed-or-denied Verdict.
package deliberation

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"policy-reasoner/api/pkg/auth"
	"policy-reasoner/api/pkg/httpx"
	"policy-reasoner/api/services/auditlog"
	"policy-reasoner/api/services/policystore"
	"policy-reasoner/api/services/reasonerconn"
	"policy-reasoner/api/services/stateresolver"
)

// Service wires together every collaborator the deliberation pipeline
// needs, the same dependency-injection shape as the teacher's
// workflow.Service{storage, deps}.
type Service struct {
	Store     policystore.Store
	Connector reasonerconn.Connector
	Resolver  stateresolver.Resolver
	Audit     auditlog.Logger
	Verifier  *auth.Verifier

	// NewUUID is injectable so tests can assert on a known verdict
	// reference; defaults to uuid.NewString.
	NewUUID func() string
}

// NewService wires the given collaborators into a Service; it does not
// check them for nil.
func NewService(store policystore.Store, connector reasonerconn.Connector, resolver stateresolver.Resolver, logger auditlog.Logger, verifier *auth.Verifier) *Service {
	return &Service{
		Store:     store,
		Connector: connector,
		Resolver:  resolver,
		Audit:     logger,
		Verifier:  verifier,
		NewUUID:   uuid.NewString,
	}
}

// LoadRoutes registers the three deliberation endpoints under
// /v1/deliberation, following the teacher's requestIDMiddleware/
// jsonMiddleware subrouter pattern plus an authMiddleware layer.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	router := parentRouter.PathPrefix("/v1/deliberation").Subrouter()
	router.StrictSlash(false)
	router.Use(httpx.RequestIDMiddleware)
	router.Use(httpx.JSONMiddleware)
	router.Use(s.Verifier.Middleware)

	router.HandleFunc("/execute-task", s.HandleExecuteTask).Methods(http.MethodPost)
	router.HandleFunc("/access-data", s.HandleAccessData).Methods(http.MethodPost)
	router.HandleFunc("/execute-workflow", s.HandleExecuteWorkflow).Methods(http.MethodPost)
}
