// Package ir defines the untrusted intermediate representation of a
// workflow graph as it arrives from the workflow runtime: a symbol table,
// a main edge-list, and a mapping from function id to edge-list.
//
// Every index recorded on an edge (next/branch/merge) is an offset into
// the edge-list it was taken from: the main graph for MainFunc, or the
// relevant entry of Funcs otherwise. The compiler package is the only
// consumer that interprets these graphs; ir itself stays a dumb, directly
// JSON-decodable model so that malformed input surfaces as ordinary Go
// zero values rather than a decode panic.
package ir

import "fmt"

// FuncID identifies a function body in Workflow.Funcs. MainFunc is the
// sentinel used in a PC to denote the top-level graph, mirroring the
// source's usize::MAX convention.
type FuncID uint64

// MainFunc is the sentinel function id denoting the top-level graph.
const MainFunc FuncID = ^FuncID(0)

// PC (program counter) addresses a single edge: the function it lives in,
// and its index within that function's edge-list.
type PC struct {
	Func FuncID `json:"func"`
	Edge int    `json:"edge"`
}

// String renders a PC the same way regardless of caller, so that a task id
// derived from a raw request PC and one derived while lowering a task node
// during compilation can be compared or embedded identically.
func (pc PC) String() string {
	if pc.Func == MainFunc {
		return fmt.Sprintf("main-%d", pc.Edge)
	}
	return fmt.Sprintf("%d-%d", uint64(pc.Func), pc.Edge)
}

// MergeStrategy names how a Parallel's branches are joined.
type MergeStrategy string

const (
	MergeNone  MergeStrategy = "none"
	MergeFirst MergeStrategy = "first"
	MergeAll   MergeStrategy = "all"
)

// AvailabilityKind classifies whether a task input dataset is already
// available at the planned execution location or must be transferred in.
type AvailabilityKind string

const (
	AvailAvailable   AvailabilityKind = "available"
	AvailUnavailable AvailabilityKind = "unavailable"
)

// Availability describes where a dataset referenced by a task input comes
// from. A nil *Availability on a DatasetRef means "availability unknown",
// treated the same as AvailAvailable (no transfer planned).
type Availability struct {
	Kind AvailabilityKind `json:"kind"`
	// Location is set when Kind == AvailUnavailable: the domain the
	// dataset must be transferred from before the task can run.
	Location *string `json:"location,omitempty"`
}

// DatasetRef is a single entry of a task Node's input set.
type DatasetRef struct {
	Name  string        `json:"name"`
	Avail *Availability `json:"avail,omitempty"`
}

// InstrKind classifies an EdgeInstr for the purposes of call-site
// resolution (see compiler.ResolveCalls): whether it pushes a function
// reference onto the hypothetical stack, or does something else.
type InstrKind string

const (
	InstrPushFunc InstrKind = "push_func"
	InstrPop      InstrKind = "pop"
	InstrOther    InstrKind = "other"
)

// Instr is one instruction of a Linear edge's instruction block.
type Instr struct {
	Kind InstrKind `json:"kind"`
	// Func is set when Kind == InstrPushFunc: the function id pushed.
	Func FuncID `json:"func,omitempty"`
}

// EdgeKind discriminates the variant carried by an Edge.
type EdgeKind string

const (
	EdgeNode     EdgeKind = "node"
	EdgeLinear   EdgeKind = "linear"
	EdgeStop     EdgeKind = "stop"
	EdgeBranch   EdgeKind = "branch"
	EdgeParallel EdgeKind = "parallel"
	EdgeJoin     EdgeKind = "join"
	EdgeLoop     EdgeKind = "loop"
	EdgeCall     EdgeKind = "call"
	EdgeReturn   EdgeKind = "return"
)

// Edge is one element of an edge-list. Only the fields relevant to Kind
// are populated; the flat shape (rather than one Go type per variant)
// keeps JSON decoding of the untrusted wire payload a single struct tag
// away, matching how the teacher's storage.Edge carries optional
// per-visual-style fields on one flat struct.
type Edge struct {
	Kind EdgeKind `json:"kind"`

	// Node
	Task   *int         `json:"task,omitempty"`
	Locs   []string     `json:"locs,omitempty"`
	At     *string      `json:"at,omitempty"`
	Input  []DatasetRef `json:"input,omitempty"`
	Result *string      `json:"result,omitempty"`

	// Linear
	Instrs []Instr `json:"instrs,omitempty"`

	// Branch
	TrueNext  int     `json:"trueNext,omitempty"`
	FalseNext *int    `json:"falseNext,omitempty"`
	Merge     *int    `json:"merge,omitempty"`

	// Parallel: Branches holds edge indices, Merge points at the Join edge
	Branches []int `json:"branches,omitempty"`

	// Join
	Strategy MergeStrategy `json:"strategy,omitempty"`

	// Loop
	Cond *int `json:"cond,omitempty"`
	Body *int `json:"body,omitempty"`

	// Shared "next" index, used by Node, Linear, Join, Loop, Call.
	Next *int `json:"next,omitempty"`
}

// TaskDef describes a task callable from a Node edge.
type TaskDef struct {
	Name        string `json:"name"`
	Package     string `json:"package"`
	Version     string `json:"version"`
	ReturnsVoid bool   `json:"returnsVoid"`
}

// FuncDef describes a function callable from a Call edge.
type FuncDef struct {
	Name        string `json:"name"`
	ReturnsVoid bool   `json:"returnsVoid"`
}

// SymTable resolves the numeric ids used by Node and Call edges.
type SymTable struct {
	Tasks map[int]TaskDef    `json:"tasks"`
	Funcs map[FuncID]FuncDef `json:"funcs"`
}

// Workflow is the untrusted, request-scoped IR of a single workflow
// execution. Funcs holds a body only for user-defined functions; a Call
// resolving to a function id absent from Funcs targets a builtin.
type Workflow struct {
	ID      string             `json:"id"`
	EndUser string             `json:"endUser"`
	Table   SymTable           `json:"table"`
	Graph   []Edge             `json:"graph"`
	Funcs   map[FuncID][]Edge  `json:"funcs"`
}

// Get returns the edge at pc and whether it existed. Out-of-bounds and
// unknown-function lookups both report ok=false, mirroring how the
// compiler treats traversal beyond an edge-list as termination rather
// than an error.
func (w *Workflow) Get(pc PC) (Edge, bool) {
	var edges []Edge
	if pc.Func == MainFunc {
		edges = w.Graph
	} else {
		var ok bool
		edges, ok = w.Funcs[pc.Func]
		if !ok {
			return Edge{}, false
		}
	}
	if pc.Edge < 0 || pc.Edge >= len(edges) {
		return Edge{}, false
	}
	return edges[pc.Edge], true
}

// Len returns the number of edges in the function's edge-list (or the
// main graph), or 0 if the function is unknown.
func (w *Workflow) Len(f FuncID) int {
	if f == MainFunc {
		return len(w.Graph)
	}
	return len(w.Funcs[f])
}
