package eflint

import (
	"fmt"

	"policy-reasoner/api/services/checker"
	"policy-reasoner/api/services/ir"
	"policy-reasoner/api/services/stateresolver"
)

// StateToPhrases translates a state snapshot into the facts the reasoner
// needs loaded before a question can be asked: every user, every location
// (also a domain-of-user, unless legacy is set), every dataset and
// function as an asset, every function additionally marked as code.
//
// legacy reproduces a historical bug in the location translation that
// emitted only user(<name>) for a location, never domain(user(<name>)):
// a policy written against that assumption treats every location as an
// ordinary user and can never match a task-at/domain fact. Corrected
// behavior (legacy=false) is the default for this connector; legacy=true
// exists only to replay older reasoner fixtures that were authored
// against the buggy translation.
func StateToPhrases(state stateresolver.State, legacy bool) []Phrase {
	var out []Phrase

	for _, u := range state.Users {
		out = append(out, Create(App("user", Str(u.Name))))
	}
	for _, l := range state.Locations {
		user := App("user", Str(l.Name))
		out = append(out, Create(user))
		if !legacy {
			out = append(out, Create(App("domain", user)))
		}
	}
	for _, d := range state.Datasets {
		out = append(out, Create(App("asset", Str(d.Name))))
	}
	for _, f := range state.Functions {
		asset := App("asset", Str(f.Name))
		out = append(out, Create(asset))
		out = append(out, Create(App("code", asset)))
	}
	return out
}

// WorkflowToPhrases translates a compiled checker workflow into reasoner
// facts: the workflow itself, its metadata, every task/commit node reached
// by walking the element tree from Start, and the result datasets named by
// every Stop reachable in the tree.
func WorkflowToPhrases(wf checker.Workflow) []Phrase {
	var out []Phrase

	out = append(out, Create(App("workflow", Str(wf.ID))))
	for _, m := range wf.Metadata {
		out = append(out, metadataPhrase("workflow-metadata", App("workflow", Str(wf.ID)), m))
	}

	c := &compiler{wfID: wf.ID, funcs: wf.Funcs, seen: map[*checker.Elem]bool{}}
	c.walk(&wf.Start, func(p Phrase) { out = append(out, p) })
	return out
}

// compiler walks a checker.Elem tree, emitting reasoner facts for every
// Task and Commit node. Branch/Parallel/Loop sub-structure is not
// reflected in the fact stream (the reasoner reasons over the flat set of
// tasks a workflow could ever run, not over which arm is taken at
// runtime); their Next continuation is still visited so tasks past them
// are not missed. seen guards against revisiting a function body's
// already-compiled Elem when a Call loops back into it.
type compiler struct {
	wfID  string
	funcs map[ir.FuncID]*checker.FunctionBody
	seen  map[*checker.Elem]bool
}

func (c *compiler) walk(e *checker.Elem, emit func(Phrase)) {
	for {
		if e == nil || c.seen[e] {
			return
		}
		c.seen[e] = true

		switch e.Kind {
		case checker.KindTask:
			c.task(e.Task, emit)
			e = e.Task.Next
		case checker.KindCommit:
			c.commit(e.Commit, emit)
			e = e.Commit.Next
		case checker.KindBranch:
			for i := range e.Branch.Branches {
				c.walk(&e.Branch.Branches[i], emit)
			}
			e = e.Branch.Next
		case checker.KindParallel:
			for i := range e.Parallel.Branches {
				c.walk(&e.Parallel.Branches[i], emit)
			}
			e = e.Parallel.Next
		case checker.KindLoop:
			c.walk(e.Loop.Body, emit)
			e = e.Loop.Next
		case checker.KindCall:
			if fb := c.funcs[e.Call.FuncID]; fb != nil && fb.Body != nil {
				c.walk(fb.Body, emit)
			}
			e = e.Call.Next
		case checker.KindStop:
			for _, r := range e.Stop.Result.Slice() {
				emit(Create(App("result", App("workflow", Str(c.wfID)), App("asset", Str(r.Name)))))
			}
			return
		case checker.KindNext:
			return
		default:
			return
		}
	}
}

func (c *compiler) task(t *checker.Task, emit func(Phrase)) {
	taskRef := App("task", Str(t.ID))
	emit(Create(taskRef))
	emit(Create(App("task-in", App("workflow", Str(c.wfID)), taskRef)))
	emit(Create(App("function", taskRef, Str(t.Name), App("asset", Str(fmt.Sprintf("%s-%s", t.Package, t.Version))))))

	for _, in := range t.Input {
		dataset := App("asset", Str(in.Name))
		emit(Create(App("argument", taskRef, dataset)))
		if in.From != nil {
			emit(Create(App("data-at", dataset, App("user", Str(*in.From)))))
		} else if t.Location != nil {
			emit(Create(App("data-at", dataset, App("user", Str(*t.Location)))))
		}
	}
	if t.Output != nil {
		emit(Create(App("output", taskRef, App("asset", Str(t.Output.Name)))))
	}
	if t.Location != nil {
		emit(Create(App("task-at", taskRef, App("domain", App("user", Str(*t.Location))))))
	}
	for _, m := range t.Metadata {
		emit(metadataPhrase("task-metadata", taskRef, m))
	}
}

func metadataPhrase(relation string, subject Expression, m checker.Metadata) Phrase {
	sig := Str("")
	if m.Signature != nil {
		sig = Str(m.Signature.Value)
	}
	metadata := App("metadata", App("owner", App("user", Str(m.Owner))), Str(m.Tag), sig)
	return Create(App(relation, subject, metadata))
}

func (c *compiler) commit(cm *checker.Commit, emit func(Phrase)) {
	commitRef := App("commit", Str(cm.ID))
	emit(Create(commitRef))
	for _, in := range cm.Input {
		emit(Create(App("commits", commitRef, App("asset", Str(in.Name)), App("asset", Str(cm.DataName)))))
	}
}
