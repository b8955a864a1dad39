// Package compiler turns an untrusted services/ir.Workflow into the
// canonical services/checker.Workflow consumed by the reasoner
// connector, in the six phases described by the deliberation service's
// workflow-compilation step: call-site resolution, inlinability
// analysis, inline ordering, inlining, lowering, and branch
// optimization.
package compiler

import (
	"policy-reasoner/api/services/checker"
	"policy-reasoner/api/services/ir"
)

// Compile runs every phase in order and returns the optimized checker
// workflow, or the first typed *Error encountered.
func Compile(wf *ir.Workflow) (*checker.Workflow, error) {
	calls, err := ResolveCalls(wf)
	if err != nil {
		return nil, err
	}

	funcs, graph, calls := Inline(wf, calls)

	out, err := Lower(wf.ID, wf.EndUser, wf.Table, graph, funcs, calls)
	if err != nil {
		return nil, err
	}

	Optimize(out)
	return out, nil
}
