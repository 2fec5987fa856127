package props

import (
	"context"
	"regexp"
	"strings"

	"github.com/kode4food/argyll/worker/pkg/piece"
	"github.com/kode4food/argyll/worker/pkg/util"
)

type (
	// StepScope exposes the step outputs visible from the current path.
	// Values are loaded on demand so only referenced steps are read
	StepScope interface {
		Names() []string
		Value(ctx context.Context, name string, iterations bool) (any, error)
	}

	// Scope is everything a template token may reference
	Scope struct {
		Steps       StepScope
		Connections piece.Connections
	}

	// Resolver replaces {{ expr }} tokens in arbitrary JSON-like values
	Resolver struct {
		sandbox ExpressionSandbox
	}

	tokenResult struct {
		value  any
		secret bool
	}
)

// Redacted replaces secret values in censored copies
const Redacted = "**REDACTED**"

const (
	connectionsVar = "connections"
	iterationsKey  = "iterations"
)

var (
	tokenPattern      = regexp.MustCompile(`\{\{(.*?)\}\}`)
	identPattern      = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)
	connectionPattern = regexp.MustCompile(
		`connections\s*\[\s*['"]([^'"]+)['"]\s*\]`,
	)
)

// NewResolver creates a resolver evaluating tokens in sandbox
func NewResolver(sandbox ExpressionSandbox) *Resolver {
	if sandbox == nil {
		sandbox = ExprSandbox{}
	}
	return &Resolver{sandbox: sandbox}
}

// Resolve walks value and evaluates every template token. It returns the
// resolved value and a censored copy in which tokens that read connections
// are redacted. Tokens that fail to evaluate become empty strings; only
// failures to load steps or connections are returned as errors
func (r *Resolver) Resolve(
	ctx context.Context, value any, scope *Scope,
) (any, any, error) {
	switch v := value.(type) {
	case string:
		return r.resolveString(ctx, v, scope)
	case map[string]any:
		res := make(map[string]any, len(v))
		cens := make(map[string]any, len(v))
		for k, elem := range v {
			rv, cv, err := r.Resolve(ctx, elem, scope)
			if err != nil {
				return nil, nil, err
			}
			res[k] = rv
			cens[k] = cv
		}
		return res, cens, nil
	case []any:
		res := make([]any, len(v))
		cens := make([]any, len(v))
		for i, elem := range v {
			rv, cv, err := r.Resolve(ctx, elem, scope)
			if err != nil {
				return nil, nil, err
			}
			res[i] = rv
			cens[i] = cv
		}
		return res, cens, nil
	default:
		return v, v, nil
	}
}

// ResolveString resolves a single template string
func (r *Resolver) ResolveString(
	ctx context.Context, s string, scope *Scope,
) (any, error) {
	res, _, err := r.resolveString(ctx, s, scope)
	return res, err
}

func (r *Resolver) resolveString(
	ctx context.Context, s string, scope *Scope,
) (any, any, error) {
	matches := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, s, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		tok, err := r.evalToken(ctx, s[matches[0][2]:matches[0][3]], scope)
		if err != nil {
			return nil, nil, err
		}
		if tok.secret {
			return tok.value, Redacted, nil
		}
		return tok.value, tok.value, nil
	}

	var res, cens strings.Builder
	last := 0
	for _, m := range matches {
		res.WriteString(s[last:m[0]])
		cens.WriteString(s[last:m[0]])
		tok, err := r.evalToken(ctx, s[m[2]:m[3]], scope)
		if err != nil {
			return nil, nil, err
		}
		text := util.Stringify(tok.value)
		res.WriteString(text)
		if tok.secret {
			cens.WriteString(Redacted)
		} else {
			cens.WriteString(text)
		}
		last = m[1]
	}
	res.WriteString(s[last:])
	cens.WriteString(s[last:])
	return res.String(), cens.String(), nil
}

func (r *Resolver) evalToken(
	ctx context.Context, src string, scope *Scope,
) (*tokenResult, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return &tokenResult{value: ""}, nil
	}

	env, secret, err := buildEnv(ctx, src, scope)
	if err != nil {
		return nil, err
	}
	val, err := r.sandbox.Evaluate(ctx, src, env)
	if err != nil || val == nil {
		val = ""
	}
	return &tokenResult{value: val, secret: secret}, nil
}

func buildEnv(
	ctx context.Context, src string, scope *Scope,
) (map[string]any, bool, error) {
	env := map[string]any{}
	if scope == nil {
		return env, false, nil
	}

	if scope.Steps != nil {
		refs := referencedNames(src)
		iterations := strings.Contains(src, iterationsKey)
		for _, name := range scope.Steps.Names() {
			if !refs.Contains(name) {
				continue
			}
			v, err := scope.Steps.Value(ctx, name, iterations)
			if err != nil {
				return nil, false, err
			}
			env[name] = v
		}
	}

	conns := connectionPattern.FindAllStringSubmatch(src, -1)
	if len(conns) == 0 || scope.Connections == nil {
		return env, len(conns) > 0, nil
	}
	values := map[string]any{}
	for _, m := range conns {
		if _, ok := values[m[1]]; ok {
			continue
		}
		v, err := scope.Connections.Obtain(ctx, m[1])
		if err != nil {
			return nil, false, err
		}
		values[m[1]] = v
	}
	env[connectionsVar] = values
	return env, true, nil
}

// referencedNames returns the root identifiers of src, skipping member
// names that follow a dot
func referencedNames(src string) util.Set[string] {
	res := util.Set[string]{}
	for _, loc := range identPattern.FindAllStringIndex(src, -1) {
		if loc[0] > 0 && src[loc[0]-1] == '.' {
			continue
		}
		res.Add(src[loc[0]:loc[1]])
	}
	return res
}

// HasTokens reports whether s contains a template token
func HasTokens(s string) bool {
	return tokenPattern.MatchString(s)
}
