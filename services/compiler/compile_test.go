package compiler

import (
	"testing"

	"policy-reasoner/api/services/checker"
	"policy-reasoner/api/services/ir"
)

func intp(v int) *int { return &v }

func linear(next int) ir.Edge {
	return ir.Edge{Kind: ir.EdgeLinear, Next: intp(next)}
}

func stop() ir.Edge { return ir.Edge{Kind: ir.EdgeStop} }

func node(task int, next int) ir.Edge {
	return ir.Edge{Kind: ir.EdgeNode, Task: &task, Next: intp(next)}
}

func pushFunc(fid ir.FuncID, next int) ir.Edge {
	return ir.Edge{Kind: ir.EdgeLinear, Instrs: []ir.Instr{{Kind: ir.InstrPushFunc, Func: fid}}, Next: intp(next)}
}

func call(next int) ir.Edge {
	return ir.Edge{Kind: ir.EdgeCall, Next: intp(next)}
}

func ret() ir.Edge { return ir.Edge{Kind: ir.EdgeReturn} }

func baseTable() ir.SymTable {
	return ir.SymTable{
		Tasks: map[int]ir.TaskDef{
			0: {Name: "fetch", Package: "weather", Version: "1.0.0", ReturnsVoid: true},
			1: {Name: "notify", Package: "email", Version: "1.0.0", ReturnsVoid: true},
		},
		Funcs: map[ir.FuncID]ir.FuncDef{},
	}
}

// TestCompileSimpleLinear covers a main graph with no calls, branches,
// or loops: a single task followed by Stop.
func TestCompileSimpleLinear(t *testing.T) {
	wf := &ir.Workflow{
		ID:      "wf-1",
		EndUser: "alice",
		Table:   baseTable(),
		Graph: []ir.Edge{
			node(0, 1),
			stop(),
		},
	}

	out, err := Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if out.Start.Kind != checker.KindTask {
		t.Fatalf("expected Task start, got %s", out.Start.Kind)
	}
	if out.Start.Task.ID != "wf-1-main-0-task" {
		t.Errorf("unexpected task id: %s", out.Start.Task.ID)
	}
	if out.Start.Task.Next == nil || out.Start.Task.Next.Kind != checker.KindStop {
		t.Errorf("expected task to continue into Stop, got %+v", out.Start.Task.Next)
	}
}

// TestCompileInlinesNonRecursiveFunction covers scenario S4: a call to a
// function that does not call itself is fully inlined, leaving no
// surviving Call element and an empty Funcs arena.
func TestCompileInlinesNonRecursiveFunction(t *testing.T) {
	const helper ir.FuncID = 1

	table := baseTable()
	table.Funcs[helper] = ir.FuncDef{Name: "helper", ReturnsVoid: true}

	wf := &ir.Workflow{
		ID:      "wf-2",
		EndUser: "alice",
		Table:   table,
		Graph: []ir.Edge{
			pushFunc(helper, 1),
			call(2),
			stop(),
		},
		Funcs: map[ir.FuncID][]ir.Edge{
			helper: {
				node(1, 1),
				ret(),
			},
		},
	}

	out, err := Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(out.Funcs) != 0 {
		t.Errorf("expected no surviving functions after full inlining, got %d", len(out.Funcs))
	}
	if out.Start.Kind != checker.KindTask || out.Start.Task.Name != "notify" {
		t.Fatalf("expected inlined helper's task first, got %+v", out.Start)
	}
	if out.Start.Task.Next == nil || out.Start.Task.Next.Kind != checker.KindStop {
		t.Errorf("expected inlined body to rejoin at the call site's continuation (Stop), got %+v", out.Start.Task.Next)
	}
}

// TestCompileSelfRecursiveFunctionSurvives covers scenario S5: a
// function that calls itself cannot be inlined (it would require
// infinite expansion) and must survive as a checker.Call referencing a
// FunctionBody in the arena, without Compile looping forever.
func TestCompileSelfRecursiveFunctionSurvives(t *testing.T) {
	const recur ir.FuncID = 7

	table := baseTable()
	table.Funcs[recur] = ir.FuncDef{Name: "recur", ReturnsVoid: true}

	wf := &ir.Workflow{
		ID:      "wf-3",
		EndUser: "alice",
		Table:   table,
		Graph: []ir.Edge{
			pushFunc(recur, 1),
			call(2),
			stop(),
		},
		Funcs: map[ir.FuncID][]ir.Edge{
			recur: {
				node(0, 1),
				pushFunc(recur, 2),
				call(3),
				ret(),
			},
		},
	}

	out, err := Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if out.Start.Kind != checker.KindCall {
		t.Fatalf("expected surviving Call at start, got %s", out.Start.Kind)
	}
	fb, ok := out.Funcs[recur]
	if !ok {
		t.Fatalf("expected function arena entry for recursive function")
	}
	if fb.Body == nil {
		t.Fatalf("expected lowered body for user-defined recursive function")
	}
	if fb.Body.Kind != checker.KindTask {
		t.Fatalf("expected recursive body to start with its task, got %s", fb.Body.Kind)
	}
	inner := fb.Body.Task.Next
	if inner == nil || inner.Kind != checker.KindCall || inner.Call.FuncID != recur {
		t.Fatalf("expected recursive body's call to reference itself, got %+v", inner)
	}
}

// TestCompileCallingWithoutId covers the CallingWithoutId error: a Call
// edge reached with no function-id hypothesis on the stack.
func TestCompileCallingWithoutId(t *testing.T) {
	wf := &ir.Workflow{
		ID:      "wf-4",
		EndUser: "alice",
		Table:   baseTable(),
		Graph: []ir.Edge{
			call(1),
			stop(),
		},
	}

	_, err := Compile(wf)
	if err == nil {
		t.Fatal("expected CallingWithoutId error")
	}
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != KindCallingWithoutId {
		t.Fatalf("expected CallingWithoutId, got %v", err)
	}
}

// TestCompileUnknownTask covers the UnknownTask error.
func TestCompileUnknownTask(t *testing.T) {
	wf := &ir.Workflow{
		ID:      "wf-5",
		EndUser: "alice",
		Table:   baseTable(),
		Graph: []ir.Edge{
			node(99, 1),
			stop(),
		},
	}

	_, err := Compile(wf)
	if err == nil {
		t.Fatal("expected UnknownTask error")
	}
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != KindUnknownTask {
		t.Fatalf("expected UnknownTask, got %v", err)
	}
}

// TestCompileBranchMerge covers Branch lowering and Phase F's pruning of
// Next-only arms: a branch whose false arm falls straight to merge
// should end up with a single surviving arm.
func TestCompileBranchMerge(t *testing.T) {
	wf := &ir.Workflow{
		ID:      "wf-6",
		EndUser: "alice",
		Table:   baseTable(),
		Graph: []ir.Edge{
			{Kind: ir.EdgeBranch, TrueNext: 1, FalseNext: intp(3), Merge: intp(3)},
			node(0, 2),
			linear(3),
			node(1, 4),
			stop(),
		},
	}

	out, err := Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if out.Start.Kind != checker.KindBranch {
		t.Fatalf("expected Branch start, got %s", out.Start.Kind)
	}
	if len(out.Start.Branch.Branches) != 1 {
		t.Fatalf("expected the Next-only false arm to be pruned, got %d branches", len(out.Start.Branch.Branches))
	}
	if out.Start.Branch.Next == nil || out.Start.Branch.Next.Kind != checker.KindTask || out.Start.Branch.Next.Task.Name != "notify" {
		t.Fatalf("expected merge continuation to be the notify task, got %+v", out.Start.Branch.Next)
	}
}

// TestCompileParallelRequiresJoin covers ParallelWithNonJoin.
func TestCompileParallelRequiresJoin(t *testing.T) {
	wf := &ir.Workflow{
		ID:      "wf-7",
		EndUser: "alice",
		Table:   baseTable(),
		Graph: []ir.Edge{
			{Kind: ir.EdgeParallel, Branches: []int{1}, Merge: intp(2)},
			stop(),
			node(0, 3),
			stop(),
		},
	}

	_, err := Compile(wf)
	if err == nil {
		t.Fatal("expected ParallelWithNonJoin error")
	}
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != KindParallelWithNonJoin {
		t.Fatalf("expected ParallelWithNonJoin, got %v", err)
	}
}

// TestCompileParallelJoin covers a well-formed Parallel/Join pair.
func TestCompileParallelJoin(t *testing.T) {
	wf := &ir.Workflow{
		ID:      "wf-8",
		EndUser: "alice",
		Table:   baseTable(),
		Graph: []ir.Edge{
			{Kind: ir.EdgeParallel, Branches: []int{1, 2}, Merge: intp(3)},
			node(0, 3),
			node(1, 3),
			{Kind: ir.EdgeJoin, Strategy: ir.MergeAll, Next: intp(4)},
			stop(),
		},
	}

	out, err := Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if out.Start.Kind != checker.KindParallel {
		t.Fatalf("expected Parallel start, got %s", out.Start.Kind)
	}
	if len(out.Start.Parallel.Branches) != 2 {
		t.Fatalf("expected 2 parallel branches, got %d", len(out.Start.Parallel.Branches))
	}
	if out.Start.Parallel.Merge != ir.MergeAll {
		t.Errorf("expected MergeAll strategy, got %s", out.Start.Parallel.Merge)
	}
	if out.Start.Parallel.Next == nil || out.Start.Parallel.Next.Kind != checker.KindStop {
		t.Errorf("expected parallel to continue into Stop, got %+v", out.Start.Parallel.Next)
	}
}

// TestCompileStrayJoin covers the StrayJoin error: a Join edge reached
// by ordinary traversal, not as a Parallel's declared merge target.
func TestCompileStrayJoin(t *testing.T) {
	wf := &ir.Workflow{
		ID:      "wf-9",
		EndUser: "alice",
		Table:   baseTable(),
		Graph: []ir.Edge{
			{Kind: ir.EdgeJoin, Strategy: ir.MergeNone, Next: intp(1)},
			stop(),
		},
	}

	_, err := Compile(wf)
	if err == nil {
		t.Fatal("expected StrayJoin error")
	}
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != KindStrayJoin {
		t.Fatalf("expected StrayJoin, got %v", err)
	}
}

// TestCompileLoop covers Loop lowering: the condition's own edge
// eventually reaches the body, and the body's back-edge to the
// condition must not recurse forever.
func TestCompileLoop(t *testing.T) {
	wf := &ir.Workflow{
		ID:      "wf-10",
		EndUser: "alice",
		Table:   baseTable(),
		Graph: []ir.Edge{
			{Kind: ir.EdgeLoop, Cond: intp(1), Body: intp(2), Next: intp(3)},
			{Kind: ir.EdgeBranch, TrueNext: 2, FalseNext: nil},
			node(0, 1),
			stop(),
		},
	}

	out, err := Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if out.Start.Kind != checker.KindLoop {
		t.Fatalf("expected Loop start, got %s", out.Start.Kind)
	}
	if out.Start.Loop.Body == nil {
		t.Fatal("expected a lowered loop body")
	}
	if out.Start.Loop.Next == nil || out.Start.Loop.Next.Kind != checker.KindStop {
		t.Errorf("expected loop to continue into Stop, got %+v", out.Start.Loop.Next)
	}
}

// TestCompileDatasetInputAvailability covers translation of planned
// availability into a Dataset's From field.
func TestCompileDatasetInputAvailability(t *testing.T) {
	loc := "site-b"
	wf := &ir.Workflow{
		ID:      "wf-11",
		EndUser: "alice",
		Table:   baseTable(),
		Graph: []ir.Edge{
			{
				Kind: ir.EdgeNode,
				Task: intp(0),
				Input: []ir.DatasetRef{
					{Name: "patients", Avail: &ir.Availability{Kind: ir.AvailUnavailable, Location: &loc}},
					{Name: "local-cache"},
				},
				Result: strp("fetched"),
				Next:   intp(1),
			},
			stop(),
		},
	}

	out, err := Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	task := out.Start.Task
	if task == nil {
		t.Fatal("expected a Task")
	}
	patients, ok := task.Input["patients"]
	if !ok {
		t.Fatal("expected patients dataset in input set")
	}
	if patients.From == nil || *patients.From != loc {
		t.Errorf("expected patients dataset sourced from %q, got %+v", loc, patients.From)
	}
	local, ok := task.Input["local-cache"]
	if !ok {
		t.Fatal("expected local-cache dataset in input set")
	}
	if local.From != nil {
		t.Errorf("expected local-cache dataset with no From, got %v", *local.From)
	}
	if task.Output == nil || task.Output.Name != "fetched" {
		t.Errorf("expected output dataset 'fetched', got %+v", task.Output)
	}
}

func strp(s string) *string { return &s }
