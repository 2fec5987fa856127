package api

import (
	"maps"
	"slices"

	"github.com/kode4food/argyll/worker/pkg/util"
)

type (
	// FlowContext is the state of one flow run. It is a value: every
	// mutator returns a new context and leaves the receiver untouched.
	// Steps holds references only; payloads live in the step store
	FlowContext struct {
		RunID          string            `json:"runId"`
		Steps          StepRefs          `json:"steps"`
		CurrentPath    StepExecutionPath `json:"currentPath"`
		Verdict        Verdict           `json:"verdict"`
		PauseRequestID string            `json:"pauseRequestId"`
		Tags           []string          `json:"tags"`
		Duration       int64             `json:"duration"`
		StepsCount     int               `json:"stepsCount"`
		Response       any               `json:"response,omitempty"`
	}

	// StepRefs maps step names to their references at one nesting level
	StepRefs map[string]*StepRef

	// StepRef addresses a persisted step output. Loop references also
	// carry one StepRefs bucket per iteration
	StepRef struct {
		RunID      string            `json:"runId"`
		StepName   string            `json:"stepName"`
		Type       ActionType        `json:"type"`
		Status     StepStatus        `json:"status"`
		Path       StepExecutionPath `json:"path"`
		Iterations []StepRefs        `json:"iterations,omitempty"`
	}
)

// NewFlowContext creates an empty running context for a fresh run
func NewFlowContext(runID, pauseRequestID string) *FlowContext {
	return &FlowContext{
		RunID:          runID,
		Steps:          StepRefs{},
		CurrentPath:    NewPath(),
		Verdict:        Running(),
		PauseRequestID: pauseRequestID,
		Tags:           []string{},
	}
}

// Reconstruct rebuilds a running context from a persisted reference tree,
// keeping only the steps that succeeded or paused so everything else runs
// again
func Reconstruct(runID, pauseRequestID string, steps StepRefs) *FlowContext {
	res := NewFlowContext(runID, pauseRequestID)
	res.Steps = steps.completedOnly()
	return res
}

// SetVerdict returns a new FlowContext with the verdict replaced
func (fc *FlowContext) SetVerdict(v Verdict) *FlowContext {
	res := *fc
	res.Verdict = v
	return &res
}

// SetCurrentPath returns a new FlowContext addressing the given path
func (fc *FlowContext) SetCurrentPath(p StepExecutionPath) *FlowContext {
	res := *fc
	res.CurrentPath = p
	return &res
}

// SetDuration returns a new FlowContext with the duration in ms set
func (fc *FlowContext) SetDuration(ms int64) *FlowContext {
	res := *fc
	res.Duration = ms
	return &res
}

// SetPauseRequestID returns a new FlowContext with the pause request set
func (fc *FlowContext) SetPauseRequestID(id string) *FlowContext {
	res := *fc
	res.PauseRequestID = id
	return &res
}

// SetResponse returns a new FlowContext carrying a synchronous response
func (fc *FlowContext) SetResponse(resp any) *FlowContext {
	res := *fc
	res.Response = resp
	return &res
}

// IncreaseStepsCount returns a new FlowContext with one more executed step
func (fc *FlowContext) IncreaseStepsCount() *FlowContext {
	res := *fc
	res.StepsCount++
	return &res
}

// AddTags returns a new FlowContext with the tags appended, ignoring any
// already present
func (fc *FlowContext) AddTags(tags ...string) *FlowContext {
	res := *fc
	res.Tags = util.AppendUnique(slices.Clone(fc.Tags), tags...)
	return &res
}

// UpsertStep returns a new FlowContext with a reference for the named step
// recorded at the current path. An existing loop reference at the same
// location keeps its iteration buckets
func (fc *FlowContext) UpsertStep(
	name string, typ ActionType, status StepStatus,
) *FlowContext {
	ref := &StepRef{
		RunID:    fc.RunID,
		StepName: name,
		Type:     typ,
		Status:   status,
		Path:     fc.CurrentPath,
	}
	res := *fc
	res.Steps = fc.Steps.update(fc.CurrentPath, func(s StepRefs) StepRefs {
		if prev, ok := s[name]; ok {
			ref.Iterations = prev.Iterations
		}
		s[name] = ref
		return s
	})
	return &res
}

// EnsureIteration returns a new FlowContext where the loop step named at
// the current path has an iteration bucket at index
func (fc *FlowContext) EnsureIteration(loopName string, index int) *FlowContext {
	res := *fc
	res.Steps = fc.Steps.update(fc.CurrentPath, func(s StepRefs) StepRefs {
		loop, ok := s[loopName]
		if !ok {
			return s
		}
		s[loopName] = loop.withIteration(index)
		return s
	})
	return &res
}

// StepRefAt returns the reference of the named step at the current path
func (fc *FlowContext) StepRefAt(name string) (*StepRef, bool) {
	steps := fc.Steps.at(fc.CurrentPath)
	ref, ok := steps[name]
	return ref, ok
}

// IsCompleted reports whether the named step already ran to a non-paused
// state at the current path
func (fc *FlowContext) IsCompleted(name string) bool {
	ref, ok := fc.StepRefAt(name)
	return ok && ref.Status != StepPaused
}

// IsPaused reports whether the named step is paused at the current path
func (fc *FlowContext) IsPaused(name string) bool {
	ref, ok := fc.StepRefAt(name)
	return ok && ref.Status == StepPaused
}

// VisibleSteps returns every reference readable from the current path: the
// top-level steps plus the active iteration bucket of each enclosing loop.
// Inner buckets shadow outer names
func (fc *FlowContext) VisibleSteps() StepRefs {
	res := maps.Clone(fc.Steps)
	if res == nil {
		res = StepRefs{}
	}
	cur := fc.Steps
	for _, frame := range fc.CurrentPath {
		bucket := cur.bucket(frame)
		if bucket == nil {
			break
		}
		maps.Copy(res, bucket)
		cur = bucket
	}
	return res
}

func (s StepRefs) at(path StepExecutionPath) StepRefs {
	cur := s
	for _, frame := range path {
		cur = cur.bucket(frame)
		if cur == nil {
			return StepRefs{}
		}
	}
	return cur
}

func (s StepRefs) bucket(frame PathFrame) StepRefs {
	loop, ok := s[frame.LoopName]
	if !ok || frame.Iteration >= len(loop.Iterations) {
		return nil
	}
	return loop.Iterations[frame.Iteration]
}

// update copies the maps and loop references along path and applies fn to
// the innermost map. Untouched siblings are shared
func (s StepRefs) update(
	path StepExecutionPath, fn func(StepRefs) StepRefs,
) StepRefs {
	res := maps.Clone(s)
	if res == nil {
		res = StepRefs{}
	}
	if len(path) == 0 {
		return fn(res)
	}

	frame := path[0]
	loop, ok := res[frame.LoopName]
	if !ok {
		return res
	}
	loop = loop.withIteration(frame.Iteration)
	loop.Iterations[frame.Iteration] = loop.Iterations[frame.Iteration].update(
		path[1:], fn,
	)
	res[frame.LoopName] = loop
	return res
}

func (r *StepRef) withIteration(index int) *StepRef {
	res := *r
	res.Iterations = make([]StepRefs, max(len(r.Iterations), index+1))
	copy(res.Iterations, r.Iterations)
	for i := range res.Iterations {
		if res.Iterations[i] == nil {
			res.Iterations[i] = StepRefs{}
		}
	}
	return &res
}

func (s StepRefs) completedOnly() StepRefs {
	res := StepRefs{}
	for name, ref := range s {
		if ref.Status != StepSucceeded && ref.Status != StepPaused {
			continue
		}
		cp := *ref
		if len(ref.Iterations) > 0 {
			cp.Iterations = make([]StepRefs, len(ref.Iterations))
			for i, bucket := range ref.Iterations {
				cp.Iterations[i] = bucket.completedOnly()
			}
		}
		res[name] = &cp
	}
	return res
}

// Names returns the step names at this level in sorted order
func (s StepRefs) Names() []string {
	return slices.Sorted(maps.Keys(s))
}
