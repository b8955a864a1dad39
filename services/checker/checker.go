// Package checker defines the canonical checker workflow: the rooted
// element tree produced by services/compiler from an untrusted
// services/ir.Workflow, and consumed by services/reasonerconn to build a
// reasoner query.
package checker

import "policy-reasoner/api/services/ir"

// Dataset names a piece of data flowing through the workflow. Equality
// and hashing are by name alone, per spec: two Dataset values with the
// same name are the same dataset regardless of where From points.
type Dataset struct {
	Name string  `json:"name"`
	From *string `json:"from,omitempty"`
}

// DatasetSet is a set of Dataset keyed by name, giving Dataset's
// name-only equality for free.
type DatasetSet map[string]Dataset

// NewDatasetSet builds a DatasetSet from a slice, deduplicating by name.
func NewDatasetSet(datasets ...Dataset) DatasetSet {
	s := make(DatasetSet, len(datasets))
	for _, d := range datasets {
		s[d.Name] = d
	}
	return s
}

// Add inserts d, overwriting any existing entry with the same name.
func (s DatasetSet) Add(d Dataset) { s[d.Name] = d }

// Slice returns the set's members. Order is not guaranteed.
func (s DatasetSet) Slice() []Dataset {
	out := make([]Dataset, 0, len(s))
	for _, d := range s {
		out = append(out, d)
	}
	return out
}

// Signature verifies a piece of Metadata.
type Signature struct {
	Signer string `json:"signer"`
	Value  string `json:"value"`
}

// Metadata is a single "owner:tag" annotation, optionally signed.
type Metadata struct {
	Owner     string     `json:"owner"`
	Tag       string     `json:"tag"`
	Signature *Signature `json:"signature,omitempty"`
}

// User identifies the end-user instigating (and receiving the result of)
// a workflow.
type User struct {
	Name string `json:"name"`
}

// Kind discriminates the variant carried by an Elem.
type Kind string

const (
	KindTask     Kind = "task"
	KindCommit   Kind = "commit"
	KindBranch   Kind = "branch"
	KindParallel Kind = "parallel"
	KindLoop     Kind = "loop"
	KindCall     Kind = "call"
	KindNext     Kind = "next"
	KindStop     Kind = "stop"
)

// Elem is one node of the checker workflow's element tree. Exactly one of
// the pointer fields is populated, selected by Kind; KindNext carries no
// payload (it means "defer to the parent's continuation").
type Elem struct {
	Kind     Kind      `json:"kind"`
	Task     *Task     `json:"task,omitempty"`
	Commit   *Commit   `json:"commit,omitempty"`
	Branch   *Branch   `json:"branch,omitempty"`
	Parallel *Parallel `json:"parallel,omitempty"`
	Loop     *Loop     `json:"loop,omitempty"`
	Call     *Call     `json:"call,omitempty"`
	Stop     *Stop     `json:"stop,omitempty"`
}

// Next is the terminator meaning "continue with whatever the parent
// element considers its next step".
func Next() Elem { return Elem{Kind: KindNext} }

// StopElem is a terminator carrying the (possibly empty) result datasets.
func StopElem(results DatasetSet) Elem {
	if results == nil {
		results = DatasetSet{}
	}
	return Elem{Kind: KindStop, Stop: &Stop{Result: results}}
}

// Task represents a single task execution.
type Task struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Package  string     `json:"package"`
	Version  string     `json:"version"`
	Input    DatasetSet `json:"input"`
	Output   *Dataset   `json:"output,omitempty"`
	Location *string    `json:"location,omitempty"`
	Metadata []Metadata `json:"metadata"`
	Next     *Elem      `json:"next"`
}

// Commit promotes a task's output into a durable, named dataset.
type Commit struct {
	ID       string     `json:"id"`
	DataName string     `json:"dataName"`
	Location *string    `json:"location,omitempty"`
	Input    DatasetSet `json:"input"`
	Next     *Elem      `json:"next"`
}

// Branch is a set of mutually-exclusive sub-graphs, exactly one of which
// is taken at runtime (the checker cannot know which).
type Branch struct {
	Branches []Elem `json:"branches"`
	Next     *Elem  `json:"next"`
}

// Parallel is a set of sub-graphs all taken concurrently, joined by
// Merge.
type Parallel struct {
	Branches []Elem        `json:"branches"`
	Merge    ir.MergeStrategy `json:"merge"`
	Next     *Elem         `json:"next"`
}

// Loop repeats Body an unknown number of times before continuing at Next.
type Loop struct {
	Body *Elem `json:"body"`
	Next *Elem `json:"next"`
}

// Call is a surviving (non-inlined) function call: either a recursive
// user function or a builtin, both represented by id into Workflow.Funcs
// rather than an embedded pointer, avoiding a self-referential Go value.
type Call struct {
	FuncID ir.FuncID `json:"funcId"`
	Next   *Elem     `json:"next"`
}

// Stop terminates a branch of execution, optionally carrying the
// datasets that remain live for the caller.
type Stop struct {
	Result DatasetSet `json:"result"`
}

// FunctionBody is the arena entry for a surviving (non-inlined) function:
// either a builtin (no Body) or a lowered user function.
type FunctionBody struct {
	Name    string `json:"name"`
	Builtin bool   `json:"builtin"`
	Body    *Elem  `json:"body,omitempty"`
}

// Workflow is the canonical, post-compilation representation consumed by
// services/reasonerconn.
type Workflow struct {
	ID        string                          `json:"id"`
	User      User                            `json:"user"`
	Start     Elem                            `json:"start"`
	Funcs     map[ir.FuncID]*FunctionBody     `json:"funcs"`
	Metadata  []Metadata                      `json:"metadata"`
	Signature string                          `json:"signature"`
}
