package compiler

import (
	"sort"

	"policy-reasoner/api/services/ir"
)

// funcResult is one function body's state after inlining: its rewritten
// edge-list, and the surviving (non-inlined) Call edges it still
// contains, keyed by their PC within edges' own coordinate space.
type funcResult struct {
	edges []ir.Edge
	calls CallMap
}

// inliner carries the state threaded through Phase D.
type inliner struct {
	calls     CallMap
	inlinable map[ir.FuncID]bool
	processed map[ir.FuncID]funcResult
}

// Inline implements spec.md Phase D. It splices every inlinable
// function's body into each of its call sites, in dependency order, and
// returns the surviving (non-inlinable) functions plus the rewritten
// main graph and a CallMap rebased onto the new edge positions.
//
// Appending rather than rewriting in place is what keeps this
// tractable: every pre-existing edge in a function keeps its original
// index for the lifetime of that function's processing, so only the
// newly-appended callee copy needs its internal indices shifted.
func Inline(wf *ir.Workflow, calls CallMap) (map[ir.FuncID][]ir.Edge, []ir.Edge, CallMap) {
	ids := make([]ir.FuncID, 0, len(wf.Funcs))
	for fid := range wf.Funcs {
		ids = append(ids, fid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	g := buildCallGraph(calls, wf.Funcs)
	inlinable := inlinableFuncs(g)
	order := inlineOrder(ids, g, inlinable)

	in := &inliner{calls: calls, inlinable: inlinable, processed: map[ir.FuncID]funcResult{}}

	for _, fid := range order {
		in.processed[fid] = in.process(fid, wf.Funcs[fid])
	}
	for _, fid := range ids {
		if !inlinable[fid] {
			in.processed[fid] = in.process(fid, wf.Funcs[fid])
		}
	}
	mainResult := in.process(ir.MainFunc, wf.Graph)

	finalFuncs := make(map[ir.FuncID][]ir.Edge)
	finalCalls := CallMap{}
	for _, fid := range ids {
		if inlinable[fid] {
			continue
		}
		res := in.processed[fid]
		finalFuncs[fid] = res.edges
		for pc, target := range res.calls {
			finalCalls[pc] = target
		}
	}
	for pc, target := range mainResult.calls {
		finalCalls[pc] = target
	}

	return finalFuncs, mainResult.edges, finalCalls
}

func (in *inliner) process(fid ir.FuncID, edges []ir.Edge) funcResult {
	out := make([]ir.Edge, len(edges))
	copy(out, edges)
	callsOut := CallMap{}

	origLen := len(edges)
	for i := 0; i < origLen; i++ {
		if out[i].Kind != ir.EdgeCall {
			continue
		}
		pc := ir.PC{Func: fid, Edge: i}
		target, ok := in.calls[pc]
		if !ok {
			// Never resolved during Phase A (dead code, or a bare call
			// with no hypothesis): left as-is, the checker rejects it at
			// lowering time.
			continue
		}
		if in.inlinable[target] {
			if callee, ok := in.processed[target]; ok {
				offset := len(out)
				callNext := out[i].Next
				shifted := shiftEdges(callee.edges, offset, callNext)
				out[i] = ir.Edge{Kind: ir.EdgeLinear, Next: intPtr(offset)}
				out = append(out, shifted...)
				for cpc, ctarget := range callee.calls {
					callsOut[ir.PC{Func: fid, Edge: cpc.Edge + offset}] = ctarget
				}
				continue
			}
		}
		callsOut[pc] = target
	}

	return funcResult{edges: out, calls: callsOut}
}

// shiftEdges copies a spliced-in function body, rebasing every internal
// index by offset and rewriting its Return edges into Linear jumps to
// contNext (the position, in the splice site's own coordinate space,
// execution resumes at once the callee "returns").
func shiftEdges(edges []ir.Edge, offset int, contNext *int) []ir.Edge {
	out := make([]ir.Edge, len(edges))
	for i, e := range edges {
		if e.Kind == ir.EdgeReturn {
			out[i] = ir.Edge{Kind: ir.EdgeLinear, Next: contNext}
			continue
		}
		ne := e
		ne.Next = shiftPtr(e.Next, offset)
		ne.FalseNext = shiftPtr(e.FalseNext, offset)
		ne.Merge = shiftPtr(e.Merge, offset)
		ne.Cond = shiftPtr(e.Cond, offset)
		ne.Body = shiftPtr(e.Body, offset)
		if e.Kind == ir.EdgeBranch {
			ne.TrueNext = e.TrueNext + offset
		}
		if e.Kind == ir.EdgeParallel && e.Branches != nil {
			nb := make([]int, len(e.Branches))
			for j, b := range e.Branches {
				nb[j] = b + offset
			}
			ne.Branches = nb
		}
		out[i] = ne
	}
	return out
}

func shiftPtr(p *int, offset int) *int {
	if p == nil {
		return nil
	}
	v := *p + offset
	return &v
}

func intPtr(v int) *int { return &v }
