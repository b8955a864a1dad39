package compiler

import (
	"fmt"

	"policy-reasoner/api/services/ir"
)

// Kind discriminates the compiler's typed error variants, matching the
// taxonomy in spec.md's Workflow Compiler failure semantics.
type Kind string

const (
	KindUnknownTask              Kind = "UnknownTask"
	KindUnknownFunc              Kind = "UnknownFunc"
	KindPcOutOfBounds            Kind = "PcOutOfBounds"
	KindParallelMergeOutOfBounds Kind = "ParallelMergeOutOfBounds"
	KindParallelWithNonJoin      Kind = "ParallelWithNonJoin"
	KindStrayJoin                Kind = "StrayJoin"
	KindCallingWithoutId         Kind = "CallingWithoutId"
)

// Error is the single exported error type for every compiler failure. All
// phases are fatal on malformed IR: there is no retry path, only a typed
// error that the deliberation handler surfaces as a 400.
type Error struct {
	Kind Kind
	// PC is the offending program counter, when applicable.
	PC ir.PC
	// Merge is the offending merge/join target, for Parallel errors.
	Merge ir.PC
	// TaskID/FuncID name the unresolved id, when applicable.
	TaskID int
	FuncID ir.FuncID
	// Max bounds a PcOutOfBounds error.
	Max int
	// Got names the unexpected edge kind for ParallelWithNonJoin.
	Got ir.EdgeKind
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnknownTask:
		return fmt.Sprintf("encountered unknown task id %d in Node", e.TaskID)
	case KindUnknownFunc:
		return fmt.Sprintf("encountered unknown function id %d in Call", uint64(e.FuncID))
	case KindCallingWithoutId:
		return fmt.Sprintf("attempted to call function at (%s) without statically known task id on the stack", e.PC)
	case KindPcOutOfBounds:
		return fmt.Sprintf("program counter (%s) is out-of-bounds for function %d with %d edges", e.PC, uint64(e.PC.Func), e.Max)
	case KindParallelMergeOutOfBounds:
		return fmt.Sprintf("parallel edge at (%s)'s merge pointer (%s) is out-of-bounds", e.PC, e.Merge)
	case KindParallelWithNonJoin:
		return fmt.Sprintf("parallel edge at (%s)'s merge edge (at %s) was not a Join, but a %s", e.PC, e.Merge, e.Got)
	case KindStrayJoin:
		return fmt.Sprintf("found Join edge without preceding Parallel edge at (%s)", e.PC)
	default:
		return fmt.Sprintf("compiler error: %s", e.Kind)
	}
}
