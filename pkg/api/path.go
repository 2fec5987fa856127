package api

import (
	"fmt"
	"strconv"
	"strings"
)

type (
	// StepExecutionPath identifies the loop iteration a step read or write
	// targets. It is an ordered list of frames, outermost loop first, and
	// every operation returns a new path
	StepExecutionPath []PathFrame

	// PathFrame is a single (loop, iteration) coordinate
	PathFrame struct {
		LoopName  string `json:"loopName"  yaml:"loopName"`
		Iteration int    `json:"iteration" yaml:"iteration"`
	}
)

const (
	pathFrameSeparator = "/"
	pathIterSeparator  = ":"
)

// NewPath returns an empty path addressing the top level of a run
func NewPath() StepExecutionPath {
	return StepExecutionPath{}
}

// LoopIteration returns a new path with one frame appended
func (p StepExecutionPath) LoopIteration(
	loopName string, iteration int,
) StepExecutionPath {
	res := make(StepExecutionPath, len(p), len(p)+1)
	copy(res, p)
	return append(res, PathFrame{LoopName: loopName, Iteration: iteration})
}

// RemoveLast returns a new path with the innermost frame dropped
func (p StepExecutionPath) RemoveLast() StepExecutionPath {
	if len(p) == 0 {
		return NewPath()
	}
	res := make(StepExecutionPath, len(p)-1)
	copy(res, p[:len(p)-1])
	return res
}

// Len returns the nesting depth of the path
func (p StepExecutionPath) Len() int {
	return len(p)
}

// Key renders the path as a stable string such as "loop_1:0/loop_2:3",
// suitable for use in storage keys. The empty path renders as ""
func (p StepExecutionPath) Key() string {
	parts := make([]string, len(p))
	for i, f := range p {
		parts[i] = f.LoopName + pathIterSeparator + strconv.Itoa(f.Iteration)
	}
	return strings.Join(parts, pathFrameSeparator)
}

// ParsePath parses a path previously rendered by Key
func ParsePath(key string) (StepExecutionPath, error) {
	if key == "" {
		return NewPath(), nil
	}
	parts := strings.Split(key, pathFrameSeparator)
	res := make(StepExecutionPath, 0, len(parts))
	for _, part := range parts {
		idx := strings.LastIndex(part, pathIterSeparator)
		if idx <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, key)
		}
		iter, err := strconv.Atoi(part[idx+1:])
		if err != nil || iter < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, key)
		}
		res = append(res, PathFrame{LoopName: part[:idx], Iteration: iter})
	}
	return res, nil
}

// Equal reports whether two paths address the same location
func (p StepExecutionPath) Equal(other StepExecutionPath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Frames returns a copy of the frames, outermost first
func (p StepExecutionPath) Frames() []PathFrame {
	res := make([]PathFrame, len(p))
	copy(res, p)
	return res
}
