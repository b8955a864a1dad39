// Package policyapi is the HTTP surface over services/policystore: list,
// fetch, add, and activate policy versions, plus the reasoner connector's
// self-description endpoint. It is deliberately a sibling of
// services/deliberation rather than a dependency of it — both sit on top
// of the same policystore.Store and reasonerconn.Connector, neither on
// top of the other.
package policyapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"policy-reasoner/api/pkg/auth"
	"policy-reasoner/api/pkg/httpx"
	"policy-reasoner/api/services/auditlog"
	"policy-reasoner/api/services/policystore"
	"policy-reasoner/api/services/reasonerconn"
)

// Service wires policyapi's handlers to their collaborators.
type Service struct {
	Store     policystore.Store
	Connector reasonerconn.Connector
	Audit     auditlog.Logger
	Verifier  *auth.Verifier
}

// NewService builds a Service from its collaborators.
func NewService(store policystore.Store, connector reasonerconn.Connector, logger auditlog.Logger, verifier *auth.Verifier) *Service {
	return &Service{Store: store, Connector: connector, Audit: logger, Verifier: verifier}
}

// LoadRoutes registers the policy-management endpoints under /v1/policies,
// plus the connector-context endpoint under /v1/management.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	policies := parentRouter.PathPrefix("/v1/policies").Subrouter()
	policies.Use(httpx.RequestIDMiddleware)
	policies.Use(httpx.JSONMiddleware)
	policies.Use(s.Verifier.Middleware)

	policies.HandleFunc("/", s.HandleGetLatest).Methods(http.MethodGet)
	policies.HandleFunc("/", s.HandleAddVersion).Methods(http.MethodPost)
	policies.HandleFunc("/versions", s.HandleGetVersions).Methods(http.MethodGet)
	policies.HandleFunc("/active", s.HandleGetActive).Methods(http.MethodGet)
	policies.HandleFunc("/active", s.HandleSetActive).Methods(http.MethodPut)
	policies.HandleFunc("/{version:[0-9]+}", s.HandleGetVersion).Methods(http.MethodGet)

	management := parentRouter.PathPrefix("/v1/management").Subrouter()
	management.Use(httpx.RequestIDMiddleware)
	management.Use(httpx.JSONMiddleware)
	management.Use(s.Verifier.Middleware)
	management.HandleFunc("/reasoner-connector-context", s.HandleConnectorContext).Methods(http.MethodGet)
}
