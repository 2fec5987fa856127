package props

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kode4food/ale"
	"github.com/kode4food/ale/core/bootstrap"
	"github.com/kode4food/ale/data"
	"github.com/kode4food/ale/env"
	"github.com/kode4food/ale/eval"
)

// AleSandbox evaluates tokens as Ale forms. Each token is compiled into a
// lambda over the sorted scope names and cached by source and names
type AleSandbox struct {
	env   *env.Environment
	procs sync.Map
}

const aleLambdaTemplate = "(lambda (%s) %s)"

var (
	ErrAleNotProcedure = errors.New("not a procedure")
	ErrAleCompile      = errors.New("expression compile error")
	ErrAleCall         = errors.New("error calling expression")
)

var _ ExpressionSandbox = (*AleSandbox)(nil)

// NewAleSandbox creates an Ale sandbox with the core library bootstrapped
func NewAleSandbox() *AleSandbox {
	e := env.NewEnvironment()
	bootstrap.Into(e)
	return &AleSandbox{env: e}
}

// Evaluate compiles src against the names in scope and calls it with their
// values. Ale forms cannot be interrupted once called
func (s *AleSandbox) Evaluate(
	ctx context.Context, src string, scope map[string]any,
) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(scope))
	for k := range scope {
		names = append(names, k)
	}
	slices.Sort(names)

	proc, err := s.compile(src, names)
	if err != nil {
		return nil, err
	}

	args := make(data.Vector, len(names))
	for i, name := range names {
		args[i] = toAle(scope[name])
	}
	res, err := catchPanic(ErrAleCall, func() (ale.Value, error) {
		return proc.Call(args...), nil
	})
	if err != nil {
		return nil, err
	}
	return fromAle(res), nil
}

func (s *AleSandbox) compile(
	src string, names []string,
) (data.Procedure, error) {
	key := aleCacheKey(src, names)
	if val, ok := s.procs.Load(key); ok {
		return val.(data.Procedure), nil
	}

	lambda := fmt.Sprintf(aleLambdaTemplate, strings.Join(names, " "), src)
	proc, err := catchPanic(ErrAleCompile,
		func() (data.Procedure, error) {
			ns := s.env.GetAnonymous()
			res, err := eval.String(ns, data.String(lambda))
			if err != nil {
				return nil, err
			}
			proc, ok := res.(data.Procedure)
			if !ok {
				return nil, fmt.Errorf("%w, got: %T", ErrAleNotProcedure, res)
			}
			return proc, nil
		},
	)
	if err != nil {
		return nil, err
	}
	s.procs.Store(key, proc)
	return proc, nil
}

func aleCacheKey(src string, names []string) string {
	hash := sha256.Sum256([]byte(src))
	return strings.Join(names, ",") + ":" + hex.EncodeToString(hash[:8])
}

func toAle(value any) ale.Value {
	switch v := value.(type) {
	case nil:
		return data.Null
	case string:
		return data.String(v)
	case bool:
		return data.Bool(v)
	case int:
		return data.Integer(v)
	case int64:
		return data.Integer(v)
	case float64:
		return data.Float(v)
	case []any:
		vec := make(data.Vector, len(v))
		for i, item := range v {
			vec[i] = toAle(item)
		}
		return vec
	case map[string]any:
		obj := data.NewObject()
		for k, item := range v {
			pair := data.NewCons(data.Keyword(k), toAle(item))
			obj = obj.Put(pair).(*data.Object)
		}
		return obj
	default:
		return data.String(fmt.Sprintf("%v", v))
	}
}

func fromAle(value ale.Value) any {
	switch v := value.(type) {
	case data.Bool:
		return bool(v)
	case data.Keyword:
		return string(v)
	case data.Integer:
		return int(v)
	case data.Float:
		return float64(v)
	case data.Vector:
		res := make([]any, len(v))
		for i, item := range v {
			res[i] = fromAle(item)
		}
		return res
	case *data.List:
		res := []any{}
		for l := v; !l.IsEmpty(); {
			head, tail, ok := l.Split()
			if !ok {
				break
			}
			res = append(res, fromAle(head))
			l = tail.(*data.List)
		}
		return res
	case *data.Object:
		res := map[string]any{}
		for _, pair := range v.Pairs() {
			key := fmt.Sprintf("%v", fromAle(pair.Car()))
			res[key] = fromAle(pair.Cdr())
		}
		return res
	default:
		if value == data.Null {
			return nil
		}
		return fmt.Sprintf("%v", v)
	}
}

func catchPanic[T any](base error, fn func() (T, error)) (res T, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = fmt.Errorf("%w: %w", base, e)
			return
		}
		err = fmt.Errorf("%w: %v", base, r)
	}()
	return fn()
}
