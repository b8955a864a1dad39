package deliberation

import (
	"encoding/json"
	"fmt"

	"policy-reasoner/api/services/ir"
)

// taskPC is the wire shape of a task pointer: [function_id, edge_index].
// MainFunc (ir.MainFunc, usize::MAX in the source) denotes the top-level
// graph.
type taskPC [2]uint64

func (t taskPC) toPC() ir.PC {
	return ir.PC{Func: ir.FuncID(t[0]), Edge: int(t[1])}
}

// ExecuteTaskRequest is the body of POST /v1/deliberation/execute-task.
type ExecuteTaskRequest struct {
	UseCase  string      `json:"use_case"`
	Workflow ir.Workflow `json:"workflow"`
	TaskID   taskPC      `json:"task_id"`
}

// AccessDataRequest is the body of POST /v1/deliberation/access-data.
type AccessDataRequest struct {
	UseCase  string      `json:"use_case"`
	Workflow ir.Workflow `json:"workflow"`
	DataID   string      `json:"data_id"`
	TaskID   *taskPC     `json:"task_id,omitempty"`
}

// ExecuteWorkflowRequest is the body of POST /v1/deliberation/execute-workflow.
type ExecuteWorkflowRequest struct {
	UseCase  string      `json:"use_case"`
	Workflow ir.Workflow `json:"workflow"`
}

// taskID renders a task pointer into the stable string
// "${workflow_id}-${program_counter_string}-task", the same format
// services/compiler's lowering step stamps onto checker.Task.ID, so a
// request's raw task pointer and the compiled task it refers to compare
// equal as strings without either side needing to know the other's
// representation.
func taskID(workflowID string, pc ir.PC) string {
	return fmt.Sprintf("%s-%s-task", workflowID, pc.String())
}

func decodeBody[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("invalid request body: %w", err)
	}
	return v, nil
}
