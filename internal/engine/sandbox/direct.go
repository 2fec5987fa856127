package sandbox

import (
	"context"
	"fmt"
)

// Direct runs code units in the host process without isolation. Go units
// are called as-is and script units share no limits
type Direct struct {
	registry *Registry
}

var _ Sandbox = (*Direct)(nil)

// NewDirect creates a direct sandbox over registered functions
func NewDirect(reg *Registry) *Direct {
	return &Direct{registry: reg}
}

// Run executes the unit, returning ctx.Err() if ctx ends first
func (d *Direct) Run(
	ctx context.Context, unit *CodeUnit, inputs map[string]any,
) (any, error) {
	switch unit.Language {
	case LanguageGo:
		fn, ok := d.registry.Get(unit.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCodeUnitNotFound, unit.Name)
		}
		return runGuarded(ctx, func() (any, error) {
			return fn(ctx, inputs)
		})
	case LanguageJS:
		return runJS(ctx, unit, inputs, Limits{})
	case LanguageLua:
		return runGuarded(ctx, func() (any, error) {
			return runLua(ctx, unit, inputs, Limits{})
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, unit.Language)
	}
}
