package compiler

import (
	"fmt"

	"policy-reasoner/api/services/checker"
	"policy-reasoner/api/services/ir"
)

// postInline is the post-Phase-D view of a workflow: the same symbol
// table, but with main's graph and every surviving function's edge-list
// already rewritten by Inline.
type postInline struct {
	table ir.SymTable
	graph []ir.Edge
	funcs map[ir.FuncID][]ir.Edge
}

func (p *postInline) get(pc ir.PC) (ir.Edge, bool) {
	var edges []ir.Edge
	if pc.Func == ir.MainFunc {
		edges = p.graph
	} else {
		var ok bool
		edges, ok = p.funcs[pc.Func]
		if !ok {
			return ir.Edge{}, false
		}
	}
	if pc.Edge < 0 || pc.Edge >= len(edges) {
		return ir.Edge{}, false
	}
	return edges[pc.Edge], true
}

// lowering carries the state threaded through Phase E.
type lowering struct {
	wfID string
	p    *postInline
	calls CallMap
	funcs map[ir.FuncID]*checker.FunctionBody
}

// Lower implements spec.md Phase E: a second traversal of the
// post-inlining graph that produces the canonical checker.Workflow.
func Lower(wfID, endUser string, table ir.SymTable, graph []ir.Edge, funcs map[ir.FuncID][]ir.Edge, calls CallMap) (*checker.Workflow, error) {
	l := &lowering{
		wfID:  wfID,
		p:     &postInline{table: table, graph: graph, funcs: funcs},
		calls: calls,
		funcs: map[ir.FuncID]*checker.FunctionBody{},
	}
	start, err := l.lowerSeq(ir.PC{Func: ir.MainFunc, Edge: 0}, nil, nil)
	if err != nil {
		return nil, err
	}
	return &checker.Workflow{
		ID:        wfID,
		User:      checker.User{Name: endUser},
		Start:     start,
		Funcs:     l.funcs,
		Signature: "signature",
	}, nil
}

// lowerSeq lowers the subgraph reachable from pc. boundary is the PC (if
// any) at which traversal should stop and defer to the parent via
// checker.Next() rather than keep descending — this is how Branch and
// Parallel avoid duplicating their shared continuation. overrides lets a
// caller substitute an already-lowered Elem for a given PC instead of
// re-descending into it, which Loop uses to splice its precomputed body
// into the chain produced by lowering its condition.
func (l *lowering) lowerSeq(pc ir.PC, boundary *ir.PC, overrides map[ir.PC]checker.Elem) (checker.Elem, error) {
	if boundary != nil && pc == *boundary {
		return checker.Next(), nil
	}
	if overrides != nil {
		if e, ok := overrides[pc]; ok {
			return e, nil
		}
	}

	edge, ok := l.p.get(pc)
	if !ok {
		return checker.StopElem(nil), nil
	}

	switch edge.Kind {
	case ir.EdgeNode:
		return l.lowerNode(pc, edge, boundary, overrides)

	case ir.EdgeLinear:
		return l.lowerSeq(ir.PC{Func: pc.Func, Edge: next_(edge)}, boundary, overrides)

	case ir.EdgeStop:
		return checker.StopElem(nil), nil

	case ir.EdgeReturn:
		return checker.StopElem(nil), nil

	case ir.EdgeBranch:
		return l.lowerBranch(pc, edge, boundary, overrides)

	case ir.EdgeParallel:
		return l.lowerParallel(pc, edge, boundary, overrides)

	case ir.EdgeJoin:
		return checker.Elem{}, &Error{Kind: KindStrayJoin, PC: pc}

	case ir.EdgeLoop:
		return l.lowerLoop(pc, edge, boundary, overrides)

	case ir.EdgeCall:
		return l.lowerCall(pc, edge, boundary, overrides)

	default:
		return checker.StopElem(nil), nil
	}
}

func (l *lowering) lowerNode(pc ir.PC, edge ir.Edge, boundary *ir.PC, overrides map[ir.PC]checker.Elem) (checker.Elem, error) {
	if edge.Task == nil {
		return checker.Elem{}, &Error{Kind: KindUnknownTask, PC: pc}
	}
	def, ok := l.p.table.Tasks[*edge.Task]
	if !ok {
		return checker.Elem{}, &Error{Kind: KindUnknownTask, PC: pc, TaskID: *edge.Task}
	}

	input := checker.DatasetSet{}
	for _, ref := range edge.Input {
		d := checker.Dataset{Name: ref.Name}
		if ref.Avail != nil && ref.Avail.Kind == ir.AvailUnavailable {
			d.From = ref.Avail.Location
		}
		input.Add(d)
	}
	var output *checker.Dataset
	if edge.Result != nil {
		output = &checker.Dataset{Name: *edge.Result}
	}

	next, err := l.lowerSeq(ir.PC{Func: pc.Func, Edge: next_(edge)}, boundary, overrides)
	if err != nil {
		return checker.Elem{}, err
	}

	return checker.Elem{
		Kind: checker.KindTask,
		Task: &checker.Task{
			ID:       taskID(l.wfID, pc),
			Name:     def.Name,
			Package:  def.Package,
			Version:  def.Version,
			Input:    input,
			Output:   output,
			Location: edge.At,
			Next:     &next,
		},
	}, nil
}

func taskID(workflowID string, pc ir.PC) string {
	return fmt.Sprintf("%s-%s-task", workflowID, pc.String())
}

func (l *lowering) lowerBranch(pc ir.PC, edge ir.Edge, boundary *ir.PC, overrides map[ir.PC]checker.Elem) (checker.Elem, error) {
	var mergePC *ir.PC
	if edge.Merge != nil {
		mergePC = &ir.PC{Func: pc.Func, Edge: *edge.Merge}
	}

	trueElem, err := l.lowerSeq(ir.PC{Func: pc.Func, Edge: edge.TrueNext}, mergePC, overrides)
	if err != nil {
		return checker.Elem{}, err
	}
	branches := []checker.Elem{trueElem}

	if edge.FalseNext != nil {
		falseElem, err := l.lowerSeq(ir.PC{Func: pc.Func, Edge: *edge.FalseNext}, mergePC, overrides)
		if err != nil {
			return checker.Elem{}, err
		}
		branches = append(branches, falseElem)
	}

	var next checker.Elem
	if mergePC != nil {
		next, err = l.lowerSeq(*mergePC, boundary, overrides)
		if err != nil {
			return checker.Elem{}, err
		}
	} else {
		next = checker.StopElem(nil)
	}

	return checker.Elem{
		Kind:   checker.KindBranch,
		Branch: &checker.Branch{Branches: branches, Next: &next},
	}, nil
}

func (l *lowering) lowerParallel(pc ir.PC, edge ir.Edge, boundary *ir.PC, overrides map[ir.PC]checker.Elem) (checker.Elem, error) {
	if edge.Merge == nil {
		return checker.Elem{}, &Error{Kind: KindParallelMergeOutOfBounds, PC: pc}
	}
	joinPC := ir.PC{Func: pc.Func, Edge: *edge.Merge}
	joinEdge, ok := l.p.get(joinPC)
	if !ok {
		return checker.Elem{}, &Error{Kind: KindParallelMergeOutOfBounds, PC: pc, Merge: joinPC}
	}
	if joinEdge.Kind != ir.EdgeJoin {
		return checker.Elem{}, &Error{Kind: KindParallelWithNonJoin, PC: pc, Merge: joinPC, Got: joinEdge.Kind}
	}

	branches := make([]checker.Elem, 0, len(edge.Branches))
	for _, b := range edge.Branches {
		elem, err := l.lowerSeq(ir.PC{Func: pc.Func, Edge: b}, &joinPC, overrides)
		if err != nil {
			return checker.Elem{}, err
		}
		branches = append(branches, elem)
	}

	next, err := l.lowerSeq(ir.PC{Func: pc.Func, Edge: next_(joinEdge)}, boundary, overrides)
	if err != nil {
		return checker.Elem{}, err
	}

	return checker.Elem{
		Kind: checker.KindParallel,
		Parallel: &checker.Parallel{
			Branches: branches,
			Merge:    joinEdge.Strategy,
			Next:     &next,
		},
	}, nil
}

func (l *lowering) lowerLoop(pc ir.PC, edge ir.Edge, boundary *ir.PC, overrides map[ir.PC]checker.Elem) (checker.Elem, error) {
	if edge.Cond == nil || edge.Body == nil {
		return checker.Elem{}, nil
	}
	condPC := ir.PC{Func: pc.Func, Edge: *edge.Cond}
	bodyPC := ir.PC{Func: pc.Func, Edge: *edge.Body}

	bodyElem, err := l.lowerSeq(bodyPC, &condPC, overrides)
	if err != nil {
		return checker.Elem{}, err
	}

	nested := make(map[ir.PC]checker.Elem, len(overrides)+1)
	for k, v := range overrides {
		nested[k] = v
	}
	nested[bodyPC] = bodyElem

	condElem, err := l.lowerSeq(condPC, nil, nested)
	if err != nil {
		return checker.Elem{}, err
	}

	var next checker.Elem
	if edge.Next != nil {
		next, err = l.lowerSeq(ir.PC{Func: pc.Func, Edge: *edge.Next}, boundary, overrides)
		if err != nil {
			return checker.Elem{}, err
		}
	} else {
		next = checker.StopElem(nil)
	}

	return checker.Elem{
		Kind: checker.KindLoop,
		Loop: &checker.Loop{Body: &condElem, Next: &next},
	}, nil
}

func (l *lowering) lowerCall(pc ir.PC, edge ir.Edge, boundary *ir.PC, overrides map[ir.PC]checker.Elem) (checker.Elem, error) {
	target, ok := l.calls[pc]
	if !ok {
		return checker.Elem{}, &Error{Kind: KindCallingWithoutId, PC: pc}
	}
	if _, ok := l.p.table.Funcs[target]; !ok {
		return checker.Elem{}, &Error{Kind: KindUnknownFunc, PC: pc, FuncID: target}
	}
	if _, err := l.ensureFunc(target); err != nil {
		return checker.Elem{}, err
	}

	next, err := l.lowerSeq(ir.PC{Func: pc.Func, Edge: next_(edge)}, boundary, overrides)
	if err != nil {
		return checker.Elem{}, err
	}

	return checker.Elem{
		Kind: checker.KindCall,
		Call: &checker.Call{FuncID: target, Next: &next},
	}, nil
}

// ensureFunc returns the arena entry for fid, lowering its body on first
// access. The stub is inserted before recursing so a function that calls
// itself (a Call edge that survives inlining, as builtin calls do too)
// resolves to the same, eventually-filled-in pointer rather than
// recursing forever.
func (l *lowering) ensureFunc(fid ir.FuncID) (*checker.FunctionBody, error) {
	if fb, ok := l.funcs[fid]; ok {
		return fb, nil
	}
	def := l.p.table.Funcs[fid]
	edges, isUser := l.p.funcs[fid]

	fb := &checker.FunctionBody{Name: def.Name, Builtin: !isUser}
	l.funcs[fid] = fb
	if !isUser {
		return fb, nil
	}
	_ = edges

	body, err := l.lowerSeq(ir.PC{Func: fid, Edge: 0}, nil, nil)
	if err != nil {
		return nil, err
	}
	fb.Body = &body
	return fb, nil
}
