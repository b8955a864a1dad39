package compiler

import "policy-reasoner/api/services/ir"

// CallMap maps the PC of a Call edge to the function id it resolves to.
// An entry pointing to a FuncID absent from Workflow.Funcs means the call
// targets a builtin.
type CallMap map[ir.PC]ir.FuncID

// resolver carries the state threaded through Phase A's recursive walk.
type resolver struct {
	wf *ir.Workflow
	// inProgress guards against unbounded recursion into a function that
	// (directly or indirectly) calls itself: once a function's entry is
	// on the current path, re-entering it is a no-op rather than a second
	// traversal, satisfying call-resolution totality without looping
	// forever on recursive IR (scenario S5).
	inProgress map[ir.FuncID]bool
	calls      CallMap
}

// ResolveCalls implements spec.md Phase A: walk from (MAIN,0), tracking a
// hypothetical "function id on top of the stack", and record the target
// of every Call edge encountered. It returns the resulting CallMap; the
// per-edge stack hypothesis is threaded internally by walk.
func ResolveCalls(wf *ir.Workflow) (CallMap, error) {
	r := &resolver{wf: wf, inProgress: map[ir.FuncID]bool{}, calls: CallMap{}}
	_, err := r.walk(ir.PC{Func: ir.MainFunc, Edge: 0}, nil, nil)
	if err != nil {
		return nil, err
	}
	return r.calls, nil
}

// walk returns the stack hypothesis surviving past pc (and any breakpoint
// reached along the way), or an error on malformed IR.
func (r *resolver) walk(pc ir.PC, stack *ir.FuncID, breakpoint *ir.PC) (*ir.FuncID, error) {
	if breakpoint != nil && pc == *breakpoint {
		return nil, nil
	}

	edge, ok := r.wf.Get(pc)
	if !ok {
		// Out-of-bounds/unknown-function traversal terminates silently,
		// as spec.md's PC invariant describes.
		return nil, nil
	}

	switch edge.Kind {
	case ir.EdgeNode:
		if edge.Task == nil {
			return nil, &Error{Kind: KindUnknownTask, PC: pc}
		}
		def, ok := r.wf.Table.Tasks[*edge.Task]
		if !ok {
			return nil, &Error{Kind: KindUnknownTask, PC: pc, TaskID: *edge.Task}
		}
		next := stack
		if !def.ReturnsVoid {
			next = nil
		}
		return r.walk(ir.PC{Func: pc.Func, Edge: next_(edge)}, next, breakpoint)

	case ir.EdgeLinear:
		next := stack
		if len(edge.Instrs) > 0 {
			last := edge.Instrs[len(edge.Instrs)-1]
			if last.Kind == ir.InstrPushFunc {
				id := last.Func
				next = &id
			} else {
				next = nil
			}
		}
		return r.walk(ir.PC{Func: pc.Func, Edge: next_(edge)}, next, breakpoint)

	case ir.EdgeStop:
		return nil, nil

	case ir.EdgeBranch:
		mergeBP := breakpoint
		if edge.Merge != nil {
			mergeBP = &ir.PC{Func: pc.Func, Edge: *edge.Merge}
		}
		trueStack, err := r.walk(ir.PC{Func: pc.Func, Edge: edge.TrueNext}, stack, mergeBP)
		if err != nil {
			return nil, err
		}
		result := trueStack
		if edge.FalseNext != nil {
			falseStack, err := r.walk(ir.PC{Func: pc.Func, Edge: *edge.FalseNext}, stack, mergeBP)
			if err != nil {
				return nil, err
			}
			if !sameFunc(trueStack, falseStack) {
				result = nil
			}
		}
		if edge.Merge != nil {
			return r.walk(ir.PC{Func: pc.Func, Edge: *edge.Merge}, result, breakpoint)
		}
		return result, nil

	case ir.EdgeParallel:
		for _, b := range edge.Branches {
			if _, err := r.walk(ir.PC{Func: pc.Func, Edge: b}, stack, breakpoint); err != nil {
				return nil, err
			}
		}
		if edge.Merge == nil {
			return nil, &Error{Kind: KindParallelMergeOutOfBounds, PC: pc}
		}
		return r.walk(ir.PC{Func: pc.Func, Edge: *edge.Merge}, stack, breakpoint)

	case ir.EdgeJoin:
		next := stack
		if edge.Strategy != ir.MergeNone {
			next = nil
		}
		return r.walk(ir.PC{Func: pc.Func, Edge: next_(edge)}, next, breakpoint)

	case ir.EdgeLoop:
		if edge.Cond == nil || edge.Body == nil {
			return nil, nil
		}
		bodyBP := ir.PC{Func: pc.Func, Edge: *edge.Body}
		condStack, err := r.walk(ir.PC{Func: pc.Func, Edge: *edge.Cond}, stack, &bodyBP)
		if err != nil {
			return nil, err
		}
		condBP := ir.PC{Func: pc.Func, Edge: *edge.Cond}
		if _, err := r.walk(ir.PC{Func: pc.Func, Edge: *edge.Body}, condStack, &condBP); err != nil {
			return nil, err
		}
		if edge.Next != nil {
			return r.walk(ir.PC{Func: pc.Func, Edge: *edge.Next}, condStack, breakpoint)
		}
		return condStack, nil

	case ir.EdgeCall:
		if stack == nil {
			return nil, &Error{Kind: KindCallingWithoutId, PC: pc}
		}
		fid := *stack
		def, ok := r.wf.Table.Funcs[fid]
		_ = def
		if !ok {
			return nil, &Error{Kind: KindUnknownFunc, PC: pc, FuncID: fid}
		}
		r.calls[pc] = fid

		var callResult *ir.FuncID
		if !r.inProgress[fid] {
			r.inProgress[fid] = true
			var err error
			callResult, err = r.walk(ir.PC{Func: fid, Edge: 0}, nil, nil)
			delete(r.inProgress, fid)
			if err != nil {
				return nil, err
			}
		}
		return r.walk(ir.PC{Func: pc.Func, Edge: next_(edge)}, callResult, breakpoint)

	case ir.EdgeReturn:
		if pc.Func == ir.MainFunc {
			return nil, nil
		}
		def, ok := r.wf.Table.Funcs[pc.Func]
		if !ok {
			return nil, &Error{Kind: KindUnknownFunc, PC: pc, FuncID: pc.Func}
		}
		if def.ReturnsVoid {
			return stack, nil
		}
		return nil, nil

	default:
		return nil, nil
	}
}

// next_ extracts the generic Next index of an edge, defaulting to -1 if
// unset (which Get then reports as out-of-bounds, terminating the walk)
// so every switch arm above can share one accessor.
func next_(e ir.Edge) int {
	if e.Next == nil {
		return -1
	}
	return *e.Next
}

func sameFunc(a, b *ir.FuncID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
