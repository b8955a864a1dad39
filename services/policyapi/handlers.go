package policyapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"policy-reasoner/api/pkg/auth"
	"policy-reasoner/api/pkg/httpx"
	"policy-reasoner/api/services/auditlog"
	"policy-reasoner/api/services/policystore"
	"policy-reasoner/api/services/reasonerconn"
)

// HandleGetLatest implements GET /v1/policies/.
func (s *Service) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	policy, err := s.Store.GetMostRecent(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, policy)
}

// HandleGetVersion implements GET /v1/policies/{version}.
func (s *Service) HandleGetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(mux.Vars(r)["version"])
	if err != nil {
		httpx.WriteErrorJSON(w, "INVALID_VERSION", "version must be an integer", http.StatusBadRequest)
		return
	}

	policy, err := s.Store.GetVersion(r.Context(), version)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, policy)
}

// HandleGetVersions implements GET /v1/policies/versions.
func (s *Service) HandleGetVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.Store.GetVersions(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, versions)
}

// HandleGetActive implements GET /v1/policies/active.
func (s *Service) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	policy, err := s.Store.GetActive(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, policy)
}

type setActiveRequest struct {
	Version int `json:"version"`
}

// HandleSetActive implements PUT /v1/policies/active.
func (s *Service) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteErrorJSON(w, "UNAUTHENTICATED", "no verified caller identity on request", http.StatusUnauthorized)
		return
	}

	body, err := readAll(r)
	if err != nil {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", "failed to read request body", http.StatusBadRequest)
		return
	}
	var req setActiveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", "invalid request body", http.StatusBadRequest)
		return
	}

	actx := policystore.Context{Initiator: ac.Initiator}
	hook := func(policy policystore.Policy) error {
		return s.Audit.Log(httpx.ReqID(r), auditlog.KindSetActivePolicy, map[string]any{
			"auth":   actx,
			"policy": policy,
		})
	}

	policy, err := s.Store.SetActive(r.Context(), req.Version, actx, hook)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, policy)
}

type addVersionRequest struct {
	Description        string                    `json:"description"`
	VersionDescription string                    `json:"version_description"`
	Content            []policystoreContentEntry `json:"content"`
}

// policystoreContentEntry mirrors the wire shape of one element of an
// add-version request's "content" array, which names the reasoner a
// policy body targets alongside the opaque body itself.
type policystoreContentEntry struct {
	Reasoner        string          `json:"reasoner"`
	ReasonerVersion string          `json:"reasoner_version"`
	Content         json.RawMessage `json:"content"`
}

// HandleAddVersion implements POST /v1/policies/.
func (s *Service) HandleAddVersion(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteErrorJSON(w, "UNAUTHENTICATED", "no verified caller identity on request", http.StatusUnauthorized)
		return
	}

	body, err := readAll(r)
	if err != nil {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", "failed to read request body", http.StatusBadRequest)
		return
	}
	var req addVersionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Content) == 0 {
		httpx.WriteErrorJSON(w, "BAD_REQUEST", "content must name at least one reasoner body", http.StatusBadRequest)
		return
	}
	// Storage holds one opaque body per version, identified by the
	// reasoner it targets; a submission naming more than one is reduced
	// to the first entry, mirroring how a single active policy always
	// speaks to exactly one reasoner at deliberation time.
	entry := req.Content[0]
	content := policystore.Content{
		ReasonerID:      entry.Reasoner,
		ReasonerVersion: entry.ReasonerVersion,
		Body:            []byte(entry.Content),
	}

	actx := policystore.Context{Initiator: ac.Initiator}
	hook := func(policy policystore.Policy) error {
		return s.Audit.Log(httpx.ReqID(r), auditlog.KindAddPolicyVersion, map[string]any{
			"auth":   actx,
			"policy": policy,
		})
	}

	policy, err := s.Store.AddVersion(r.Context(), req.VersionDescription, content, actx, hook)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, policy)
}

// HandleConnectorContext implements GET /v1/management/reasoner-connector-context.
func (s *Service) HandleConnectorContext(w http.ResponseWriter, r *http.Request) {
	described, ok := s.Connector.(reasonerconn.WithContext)
	if !ok {
		httpx.WriteErrorJSON(w, "NOT_SUPPORTED", "active connector does not describe itself", http.StatusNotImplemented)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, described.Context())
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, policystore.ErrNotFound) {
		httpx.WriteErrorJSON(w, "NOT_FOUND", err.Error(), http.StatusNotFound)
		return
	}
	httpx.WriteErrorJSON(w, "STORE_ERROR", err.Error(), http.StatusInternalServerError)
}
