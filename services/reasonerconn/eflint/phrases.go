// Package eflint defines the eFLINT JSON Specification wire types this
// module's connector speaks: phrases sent to the reasoner, and the result
// shapes it answers with. Only the subset this module actually constructs
// or parses is modeled; the reasoner's own surface is much larger.
package eflint

import "encoding/json"

// Expression is any eFLINT JSON expression. The reasoner's own grammar
// distinguishes primitives, variable references, constructor applications,
// operators, iterators and projections; this module only ever constructs
// string primitives and constructor applications, so those are the only
// two concrete shapes below.
type Expression interface {
	isExpression()
}

// StringLit is a string-valued primitive expression.
type StringLit string

func (StringLit) isExpression() {}

func (s StringLit) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// ConstructorApp applies a named relation/fact constructor to a list of
// operand expressions, e.g. task("abc") or data-at(dataset("x"), user("y")).
type ConstructorApp struct {
	Identifier string       `json:"identifier"`
	Operands   []Expression `json:"operands"`
}

func (ConstructorApp) isExpression() {}

func (c ConstructorApp) MarshalJSON() ([]byte, error) {
	type alias ConstructorApp
	return json.Marshal(alias(c))
}

// App is a shorthand constructor for a ConstructorApp expression.
func App(identifier string, operands ...Expression) Expression {
	return ConstructorApp{Identifier: identifier, Operands: operands}
}

// Str is a shorthand constructor for a StringLit expression.
func Str(s string) Expression { return StringLit(s) }

// Phrase is one entry in a request's phrase list. The connector only ever
// constructs Create statements itself (see createPhrase below); the base
// specification's own phrases are fact-type declarations it never needs to
// interpret, so they travel as RawPhrase instead.
type Phrase interface {
	isPhrase()
}

// createPhrase postulates Operand true ("+operand.").
type createPhrase struct {
	Operand Expression `json:"operand"`
}

func (createPhrase) isPhrase() {}

func (c createPhrase) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    string     `json:"kind"`
		Operand Expression `json:"operand"`
	}{Kind: "create", Operand: c.Operand})
}

// Create builds a "+operand." phrase: postulate operand true.
func Create(operand Expression) Phrase {
	return createPhrase{Operand: operand}
}

// RawPhrase is a phrase whose JSON shape is already known and need not be
// re-modeled, e.g. a fact-type declaration loaded from the embedded base
// specification.
type RawPhrase json.RawMessage

func (RawPhrase) isPhrase() {}

func (r RawPhrase) MarshalJSON() ([]byte, error) {
	return json.RawMessage(r), nil
}

// Request is the top-level object POSTed to the reasoner.
type Request struct {
	Version [3]int   `json:"version"`
	Phrases []Phrase `json:"phrases"`
	Updates bool     `json:"updates"`
}

// Violation names one duty or invariant the reasoner found broken.
type Violation struct {
	Kind       string       `json:"kind"`
	Identifier string       `json:"identifier"`
	Operands   []Expression `json:"operands,omitempty"`
}

// PhraseResult is the classified shape of one entry in a Response's
// Results. Exactly one of the pointer fields holds data, discriminated by
// a type probe during unmarshaling (see PhraseResult.UnmarshalJSON).
type PhraseResult struct {
	BooleanQuery  *BooleanQueryResult
	InstanceQuery *InstanceQueryResult
	StateChange   *StateChangeResult
}

// BooleanQueryResult answers a bquery phrase.
type BooleanQueryResult struct {
	Result bool `json:"result"`
}

// InstanceQueryResult answers an iquery phrase. The connector never issues
// instance queries; encountering one in a response is itself an error
// (see classify in connector.go), so its payload is kept uninterpreted.
type InstanceQueryResult struct {
	Results []json.RawMessage `json:"results"`
}

// StateChangeResult answers a create/terminate/obfuscate/trigger phrase:
// whether it violated any duty or invariant, and if so which.
type StateChangeResult struct {
	Success    bool        `json:"success"`
	Violated   bool        `json:"violated"`
	Violations []Violation `json:"violations,omitempty"`
}

// UnmarshalJSON discriminates the untagged PhraseResult union by probing
// for the field unique to each variant: "violated" for a state change,
// "result" (singular, boolean) for a boolean query, "results" otherwise
// for an instance query.
func (r *PhraseResult) UnmarshalJSON(data []byte) error {
	var probe struct {
		Violated *bool `json:"violated"`
		Result   *bool `json:"result"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch {
	case probe.Violated != nil:
		var sc StateChangeResult
		if err := json.Unmarshal(data, &sc); err != nil {
			return err
		}
		r.StateChange = &sc
	case probe.Result != nil:
		var bq BooleanQueryResult
		if err := json.Unmarshal(data, &bq); err != nil {
			return err
		}
		r.BooleanQuery = &bq
	default:
		var iq InstanceQueryResult
		if err := json.Unmarshal(data, &iq); err != nil {
			return err
		}
		r.InstanceQuery = &iq
	}
	return nil
}

// Response is the full object the reasoner answers with.
type Response struct {
	Success bool            `json:"success"`
	Errors  []ResponseError `json:"errors,omitempty"`
	Results []PhraseResult  `json:"results"`
}

// ResponseError is a reasoner-reported processing error unrelated to a
// specific phrase's classification (e.g. a malformed request).
type ResponseError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}
