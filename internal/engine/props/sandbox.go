package props

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/expr-lang/expr"
)

type (
	// ExpressionSandbox evaluates the body of a template token against a
	// scope of named values
	ExpressionSandbox interface {
		Evaluate(ctx context.Context, src string, env map[string]any) (any, error)
	}

	// ExprSandbox evaluates tokens with the expr language. Undefined names
	// evaluate to nil rather than failing compilation
	ExprSandbox struct{}

	// JSSandbox evaluates tokens as JavaScript expressions in a fresh goja
	// runtime per call
	JSSandbox struct {
		Timeout time.Duration
	}
)

const defaultJSTimeout = time.Second

var ErrExpressionInterrupted = errors.New("expression interrupted")

var (
	_ ExpressionSandbox = ExprSandbox{}
	_ ExpressionSandbox = (*JSSandbox)(nil)
)

// Evaluate compiles and runs src against env
func (ExprSandbox) Evaluate(
	_ context.Context, src string, env map[string]any,
) (any, error) {
	// expr.Env must come before AllowUndefinedVariables
	program, err := expr.Compile(src,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

// NewJSSandbox creates a JavaScript expression sandbox
func NewJSSandbox(timeout time.Duration) *JSSandbox {
	if timeout <= 0 {
		timeout = defaultJSTimeout
	}
	return &JSSandbox{Timeout: timeout}
}

// Evaluate runs src as a JavaScript expression with env bound as globals
func (s *JSSandbox) Evaluate(
	ctx context.Context, src string, env map[string]any,
) (any, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	for k, v := range env {
		if err := vm.Set(k, v); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ErrExpressionInterrupted)
	})
	defer stop()

	val, err := vm.RunString("(" + src + ")")
	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, fmt.Errorf("%w: %s", ErrExpressionInterrupted, src)
		}
		return nil, err
	}
	if goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}
