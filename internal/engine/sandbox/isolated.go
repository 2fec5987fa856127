package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
)

// Isolated runs every invocation in a fresh interpreter with a call stack
// ceiling and an output size cap. The interpreter is discarded when the
// call returns, whatever the outcome
type Isolated struct {
	registry *Registry
	limits   Limits
}

var _ Sandbox = (*Isolated)(nil)

// NewIsolated creates an isolated sandbox. Go units still run in-process
// but their output is held to the same size cap
func NewIsolated(reg *Registry, limits Limits) *Isolated {
	if limits.MaxCallStack <= 0 {
		limits.MaxCallStack = DefaultMaxCallStack
	}
	if limits.MaxOutputSize <= 0 {
		limits.MaxOutputSize = DefaultMaxOutputSize
	}
	return &Isolated{registry: reg, limits: limits}
}

// Run executes the unit, returning ctx.Err() if ctx ends first
func (s *Isolated) Run(
	ctx context.Context, unit *CodeUnit, inputs map[string]any,
) (any, error) {
	var res any
	var err error
	switch unit.Language {
	case LanguageJS:
		res, err = runJS(ctx, unit, inputs, s.limits)
	case LanguageLua:
		res, err = runGuarded(ctx, func() (any, error) {
			return runLua(ctx, unit, inputs, s.limits)
		})
	case LanguageGo:
		res, err = NewDirect(s.registry).Run(ctx, unit, inputs)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, unit.Language)
	}
	if err != nil {
		return nil, err
	}
	return s.normalize(res)
}

// normalize round-trips the output through JSON so nothing from the
// interpreter outlives it, enforcing the output cap on the way
func (s *Isolated) normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, NewCodeError(err.Error())
	}
	if len(b) > s.limits.MaxOutputSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrOutputTooLarge, len(b))
	}
	var res any
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, err
	}
	return res, nil
}
