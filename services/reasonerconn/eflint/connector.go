package eflint

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"policy-reasoner/api/services/auditlog"
	"policy-reasoner/api/services/checker"
	"policy-reasoner/api/services/policystore"
	"policy-reasoner/api/services/reasonerconn"
	"policy-reasoner/api/services/stateresolver"
)

// ReasonerID is the policystore.Content.ReasonerID this connector accepts
// policy bodies for; a policy whose content names a different reasoner is
// not usable with this connector.
const ReasonerID = "eflint-json"

//go:embed base_defs.json
var baseDefsJSON []byte

var (
	baseDefsHash    string
	baseDefsPhrases []Phrase
)

func init() {
	sum := sha256.Sum256(baseDefsJSON)
	baseDefsHash = hex.EncodeToString(sum[:])

	var raw []json.RawMessage
	if err := json.Unmarshal(baseDefsJSON, &raw); err != nil {
		panic(fmt.Sprintf("eflint: embedded base_defs.json is invalid: %v", err))
	}
	baseDefsPhrases = make([]Phrase, len(raw))
	for i, r := range raw {
		baseDefsPhrases[i] = RawPhrase(r)
	}
}

// Connector is the eflint-json reasonerconn.Connector implementation: it
// assembles phrase lists per the five-step protocol (base defs, state,
// question, workflow, policy), POSTs them to Addr, and classifies the
// response.
type Connector struct {
	Addr       string
	HTTPClient *http.Client
	Disclosure reasonerconn.DisclosurePolicy

	// LegacyLocationTranslation replays the historical (buggy) location
	// fact translation; see StateToPhrases. Defaults to false (corrected
	// behavior) via New.
	LegacyLocationTranslation bool
}

// New builds a Connector posting to addr. A nil httpClient falls back to
// http.DefaultClient; a nil disclosure policy defaults to LeakNone.
func New(addr string, httpClient *http.Client, disclosure reasonerconn.DisclosurePolicy) *Connector {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if disclosure == nil {
		disclosure = reasonerconn.LeakNone{}
	}
	return &Connector{Addr: addr, HTTPClient: httpClient, Disclosure: disclosure}
}

// Context implements reasonerconn.WithContext.
func (c *Connector) Context() reasonerconn.ConnectorContext {
	return reasonerconn.ConnectorContext{
		Type:         ReasonerID,
		Version:      "0.1.0",
		BaseDefs:     string(baseDefsJSON),
		BaseDefsHash: baseDefsHash,
	}
}

func (c *Connector) ExecuteTask(ctx context.Context, logger auditlog.SessionLogger, policy policystore.Policy, state stateresolver.State, workflow checker.Workflow, task string) (reasonerconn.ReasonerResponse, error) {
	question := Create(App("task-to-execute", App("task", App("node", App("workflow", Str(workflow.ID)), Str(task)))))
	return c.ask(ctx, logger, policy, state, workflow, question)
}

func (c *Connector) AccessDataRequest(ctx context.Context, logger auditlog.SessionLogger, policy policystore.Policy, state stateresolver.State, workflow checker.Workflow, data string, task *string) (reasonerconn.ReasonerResponse, error) {
	var question Phrase
	if task != nil {
		question = Create(App("dataset-to-transfer", App("node-input",
			App("node", App("workflow", Str(workflow.ID)), Str(*task)),
			App("asset", Str(data)))))
	} else {
		question = Create(App("result-to-transfer", App("workflow-result-recipient",
			App("workflow-result", App("workflow", Str(workflow.ID)), App("asset", Str(data))),
			App("user", Str(workflow.User.Name)))))
	}
	return c.ask(ctx, logger, policy, state, workflow, question)
}

func (c *Connector) WorkflowValidationRequest(ctx context.Context, logger auditlog.SessionLogger, policy policystore.Policy, state stateresolver.State, workflow checker.Workflow) (reasonerconn.ReasonerResponse, error) {
	question := Create(App("workflow-to-execute", App("workflow", Str(workflow.ID))))
	return c.ask(ctx, logger, policy, state, workflow, question)
}

// ask assembles the phrase list, submits it, logs the raw response, and
// classifies it. Every endpoint funnels through here; only the question
// phrase differs between them.
func (c *Connector) ask(ctx context.Context, logger auditlog.SessionLogger, policy policystore.Policy, state stateresolver.State, workflow checker.Workflow, question Phrase) (reasonerconn.ReasonerResponse, error) {
	if policy.Content.ReasonerID != ReasonerID {
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: policy content is for reasoner %q, not %q", policy.Content.ReasonerID, ReasonerID)
	}
	version, err := parseVersion(policy.Content.ReasonerVersion)
	if err != nil {
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: %w", err)
	}

	var policyPhrases []json.RawMessage
	if err := json.Unmarshal(policy.Content.Body, &policyPhrases); err != nil {
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: policy content is not a phrase array: %w", err)
	}

	phrases := make([]Phrase, 0, len(baseDefsPhrases)+1+len(policyPhrases))
	phrases = append(phrases, baseDefsPhrases...)
	phrases = append(phrases, StateToPhrases(state, c.LegacyLocationTranslation)...)
	phrases = append(phrases, question)
	phrases = append(phrases, WorkflowToPhrases(workflow)...)
	for _, p := range policyPhrases {
		phrases = append(phrases, RawPhrase(p))
	}

	req := Request{Version: version, Phrases: phrases, Updates: true}
	body, err := json.Marshal(req)
	if err != nil {
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Addr, bytes.NewReader(body))
	if err != nil {
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: request failed: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: read response: %w", err)
	}

	if err := logger.Log(auditlog.KindReasonerResponse, string(rawBody)); err != nil {
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: log raw response: %w", err)
	}

	var wire Response
	if err := json.Unmarshal(rawBody, &wire); err != nil {
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: parse response: %w", err)
	}

	return classify(wire, c.Disclosure)
}

// classify implements spec.md's "last result determines the answer" rule.
func classify(resp Response, disclosure reasonerconn.DisclosurePolicy) (reasonerconn.ReasonerResponse, error) {
	if len(resp.Results) == 0 {
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: unexpected result: reasoner returned no phrase results")
	}
	last := resp.Results[len(resp.Results)-1]

	switch {
	case last.BooleanQuery != nil:
		return reasonerconn.ReasonerResponse{Success: last.BooleanQuery.Result && resp.Success}, nil

	case last.StateChange != nil:
		sc := last.StateChange
		success := !sc.Violated && resp.Success
		var reasons []string
		if sc.Violated {
			ids := make([]string, len(sc.Violations))
			for i, v := range sc.Violations {
				ids[i] = v.Identifier
			}
			reasons = disclosure.Disclose(ids)
		}
		return reasonerconn.ReasonerResponse{Success: success, Errors: reasons}, nil

	default:
		return reasonerconn.ReasonerResponse{}, fmt.Errorf("eflint: invalid query: last result was an instance query")
	}
}

func parseVersion(s string) ([3]int, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return [3]int{}, fmt.Errorf("invalid version format, should be 'maj.min.patch', got %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return [3]int{}, fmt.Errorf("invalid version part %q: %w", p, err)
		}
		v[i] = n
	}
	return v, nil
}
