package api

import "maps"

type (
	// StepStatus is the state of a single recorded step
	StepStatus string

	// StepOutput is the persisted record of one step execution
	StepOutput struct {
		Type         ActionType `json:"type"`
		Status       StepStatus `json:"status"`
		Input        any        `json:"input"`
		Output       any        `json:"output,omitempty"`
		ErrorMessage string     `json:"errorMessage,omitempty"`
		Duration     int64      `json:"duration,omitempty"`
	}

	// LoopOutput is the structured output of a loop step. Iterations is only
	// materialized when the loop is expanded for reading
	LoopOutput struct {
		Index      int                      `json:"index"`
		Item       any                      `json:"item"`
		Iterations []map[string]*StepOutput `json:"iterations"`
	}

	// RouterOutput records each branch decision of a router step
	RouterOutput struct {
		Branches []RouterBranchResult `json:"branches"`
	}

	// RouterBranchResult is the evaluation of one router branch
	RouterBranchResult struct {
		BranchName  string `json:"branchName"`
		BranchIndex int    `json:"branchIndex"`
		Evaluation  bool   `json:"evaluation"`
	}

	// BranchOutput records the decision of a branch step
	BranchOutput struct {
		ConditionResult bool `json:"conditionResult"`
	}
)

const (
	StepRunning   StepStatus = "RUNNING"
	StepSucceeded StepStatus = "SUCCEEDED"
	StepFailed    StepStatus = "FAILED"
	StepPaused    StepStatus = "PAUSED"
)

// NewStepOutput creates a running step output with the given censored input
func NewStepOutput(typ ActionType, input any) *StepOutput {
	return &StepOutput{
		Type:   typ,
		Status: StepRunning,
		Input:  input,
	}
}

// SetStatus returns a new StepOutput with the updated status
func (so *StepOutput) SetStatus(s StepStatus) *StepOutput {
	res := *so
	res.Status = s
	return &res
}

// SetInput returns a new StepOutput with the input set
func (so *StepOutput) SetInput(input any) *StepOutput {
	res := *so
	res.Input = input
	return &res
}

// SetOutput returns a new StepOutput with the output set
func (so *StepOutput) SetOutput(output any) *StepOutput {
	res := *so
	res.Output = output
	return &res
}

// SetErrorMessage returns a new StepOutput with the error message set
func (so *StepOutput) SetErrorMessage(msg string) *StepOutput {
	res := *so
	res.ErrorMessage = msg
	return &res
}

// SetDuration returns a new StepOutput with the duration in ms set
func (so *StepOutput) SetDuration(ms int64) *StepOutput {
	res := *so
	res.Duration = ms
	return &res
}

// LoopSummary extracts the index and item of a loop step output, whether
// the output is typed or was decoded from JSON
func (so *StepOutput) LoopSummary() (int, any) {
	switch out := so.Output.(type) {
	case *LoopOutput:
		return out.Index, out.Item
	case LoopOutput:
		return out.Index, out.Item
	case map[string]any:
		idx, _ := out["index"].(float64)
		if i, ok := out["index"].(int); ok {
			return i, out["item"]
		}
		return int(idx), out["item"]
	default:
		return 0, nil
	}
}

// SetIteration returns a new LoopOutput with the iteration bucket at index
// replaced
func (lo *LoopOutput) SetIteration(
	index int, steps map[string]*StepOutput,
) *LoopOutput {
	res := *lo
	res.Iterations = make([]map[string]*StepOutput, max(len(lo.Iterations), index+1))
	copy(res.Iterations, lo.Iterations)
	res.Iterations[index] = maps.Clone(steps)
	return &res
}
