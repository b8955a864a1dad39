package compiler

import "policy-reasoner/api/services/checker"

// Optimize implements spec.md Phase F: a fixed-point pass over the
// checker workflow's element tree, applied to every Branch node.
// Parallel, Loop, Call, and Stop nodes are not themselves restructured,
// but the elements nested in them (branches, bodies, continuations) are
// optimized in turn.
func Optimize(wf *checker.Workflow) {
	wf.Start = optimizeElem(wf.Start)
	for _, fb := range wf.Funcs {
		if fb.Body == nil {
			continue
		}
		b := optimizeElem(*fb.Body)
		fb.Body = &b
	}
}

// optimizeElem recurses through every continuation before considering
// the node itself, so a Branch's optimization always sees already-
// optimized children.
func optimizeElem(e checker.Elem) checker.Elem {
	switch e.Kind {
	case checker.KindTask:
		if e.Task.Next != nil {
			n := optimizeElem(*e.Task.Next)
			e.Task.Next = &n
		}
	case checker.KindCommit:
		if e.Commit.Next != nil {
			n := optimizeElem(*e.Commit.Next)
			e.Commit.Next = &n
		}
	case checker.KindCall:
		if e.Call.Next != nil {
			n := optimizeElem(*e.Call.Next)
			e.Call.Next = &n
		}
	case checker.KindParallel:
		for i := range e.Parallel.Branches {
			e.Parallel.Branches[i] = optimizeElem(e.Parallel.Branches[i])
		}
		if e.Parallel.Next != nil {
			n := optimizeElem(*e.Parallel.Next)
			e.Parallel.Next = &n
		}
	case checker.KindLoop:
		if e.Loop.Body != nil {
			b := optimizeElem(*e.Loop.Body)
			e.Loop.Body = &b
		}
		if e.Loop.Next != nil {
			n := optimizeElem(*e.Loop.Next)
			e.Loop.Next = &n
		}
	case checker.KindBranch:
		for i := range e.Branch.Branches {
			e.Branch.Branches[i] = optimizeElem(e.Branch.Branches[i])
		}
		if e.Branch.Next != nil {
			n := optimizeElem(*e.Branch.Next)
			e.Branch.Next = &n
		}
		return optimizeBranch(e)
	}
	return e
}

// optimizeBranch repeats pruning, collapse, and chain-flattening until
// none of them make further progress.
func optimizeBranch(e checker.Elem) checker.Elem {
	for {
		changed := pruneNextArms(&e)

		if len(e.Branch.Branches) == 0 {
			if e.Branch.Next != nil {
				return *e.Branch.Next
			}
			return checker.StopElem(nil)
		}

		if flattenChain(&e) {
			changed = true
		}

		if !changed {
			return e
		}
	}
}

// pruneNextArms drops every arm whose element is the bare Next()
// terminator: that arm contributes nothing but "fall through to the
// branch's own continuation", which already happens by construction.
func pruneNextArms(e *checker.Elem) bool {
	changed := false
	kept := make([]checker.Elem, 0, len(e.Branch.Branches))
	for _, b := range e.Branch.Branches {
		if b.Kind == checker.KindNext {
			changed = true
			continue
		}
		kept = append(kept, b)
	}
	e.Branch.Branches = kept
	return changed
}

// flattenChain coalesces e with a Branch that immediately follows it via
// Next into one Branch node, carrying the inner branch's own
// continuation forward.
func flattenChain(e *checker.Elem) bool {
	if e.Branch.Next == nil || e.Branch.Next.Kind != checker.KindBranch {
		return false
	}
	inner := e.Branch.Next.Branch
	e.Branch.Branches = append(e.Branch.Branches, inner.Branches...)
	e.Branch.Next = inner.Next
	return true
}
