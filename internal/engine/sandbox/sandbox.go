// Package sandbox executes code units. A code unit is a separately packaged
// module exposing one entry function named code, located by convention at
// <base>/<step>/index.js or index.lua, or registered in-process as a Go
// function
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kode4food/argyll/worker/internal/config"
)

type (
	// Language identifies how a code unit is executed
	Language string

	// CodeUnit is a loaded code unit
	CodeUnit struct {
		Name     string
		Language Language
		Path     string
		Source   string
	}

	// Func is an in-process code unit
	Func func(ctx context.Context, inputs map[string]any) (any, error)

	// Sandbox runs a code unit with bound inputs. Implementations return
	// the context error when ctx ends first
	Sandbox interface {
		Run(ctx context.Context, unit *CodeUnit, inputs map[string]any) (any, error)
	}

	// Registry holds in-process code units by step name
	Registry struct {
		funcs map[string]Func
		mu    sync.RWMutex
	}

	// Loader locates code units on disk or in a registry
	Loader struct {
		registry *Registry
	}

	// Limits bounds an isolated interpreter. MaxCallStack caps the call
	// depth of script code and the nesting of values passed in and out.
	// MaxOutputSize caps the serialized result. Heap use is not metered
	Limits struct {
		MaxCallStack  int
		MaxOutputSize int
	}

	// CodeError is a failure raised by the code itself, as opposed to a
	// failure to load or run it
	CodeError struct {
		Message string
	}
)

const (
	LanguageJS  Language = "javascript"
	LanguageLua Language = "lua"
	LanguageGo  Language = "go"

	entryFunction = "code"

	DefaultMaxCallStack  = 1024
	DefaultMaxOutputSize = 4 * 1024 * 1024
)

var (
	ErrCodeUnitNotFound = errors.New("code unit not found")
	ErrNoEntryFunction  = errors.New("code unit does not export code")
	ErrOutputTooLarge   = errors.New("code output exceeds maximum size")
	ErrUnknownLanguage  = errors.New("unknown code unit language")
	ErrPromisePending   = errors.New("code returned an unsettled promise")
)

var unitFiles = []struct {
	file string
	lang Language
}{
	{"index.js", LanguageJS},
	{"index.lua", LanguageLua},
}

// DefaultLimits returns the standard isolated interpreter limits
func DefaultLimits() Limits {
	return Limits{
		MaxCallStack:  DefaultMaxCallStack,
		MaxOutputSize: DefaultMaxOutputSize,
	}
}

// New returns the sandbox strategy selected by mode
func New(mode config.SandboxMode, reg *Registry, limits Limits) Sandbox {
	if mode == config.SandboxDirect {
		return NewDirect(reg)
	}
	return NewIsolated(reg, limits)
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Func{}}
}

// Register binds fn to a step name
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Get returns the function bound to a step name
func (r *Registry) Get(name string) (Func, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// NewLoader creates a loader that prefers files on disk and falls back to
// registered functions
func NewLoader(reg *Registry) *Loader {
	return &Loader{registry: reg}
}

// Load locates the code unit of a step
func (l *Loader) Load(
	_ context.Context, baseDir, stepName string,
) (*CodeUnit, error) {
	dir := filepath.Join(baseDir, stepName)
	for _, uf := range unitFiles {
		path := filepath.Join(dir, uf.file)
		src, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCodeUnitNotFound, err)
		}
		return &CodeUnit{
			Name:     stepName,
			Language: uf.lang,
			Path:     path,
			Source:   string(src),
		}, nil
	}
	if _, ok := l.registry.Get(stepName); ok {
		return &CodeUnit{Name: stepName, Language: LanguageGo}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCodeUnitNotFound, dir)
}

// NewCodeError creates a failure raised by user code
func NewCodeError(msg string) *CodeError {
	return &CodeError{Message: msg}
}

func (e *CodeError) Error() string {
	return e.Message
}

// runGuarded runs fn on its own goroutine and returns as soon as ctx ends.
// fn is expected to notice ctx itself and return shortly after
func runGuarded(
	ctx context.Context, fn func() (any, error),
) (any, error) {
	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: NewCodeError(fmt.Sprint(r))}
			}
		}()
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
