package props_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/internal/engine/props"
)

type (
	mapSteps struct {
		values     map[string]any
		loaded     []string
		iterations []bool
		err        error
	}

	mapConnections map[string]any
)

var errNoConnection = errors.New("connection not found")

func (s *mapSteps) Names() []string {
	res := make([]string, 0, len(s.values))
	for k := range s.values {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}

func (s *mapSteps) Value(
	_ context.Context, name string, iterations bool,
) (any, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.loaded = append(s.loaded, name)
	s.iterations = append(s.iterations, iterations)
	return s.values[name], nil
}

func (c mapConnections) Obtain(_ context.Context, name string) (any, error) {
	v, ok := c[name]
	if !ok {
		return nil, errNoConnection
	}
	return v, nil
}

func newScope() (*props.Scope, *mapSteps) {
	steps := &mapSteps{
		values: map[string]any{
			"trigger": map[string]any{
				"name":  "Ada",
				"items": []any{4.0, 5.0, 6.0},
				"nested": map[string]any{
					"count": 3,
				},
			},
			"step_1": map[string]any{"ok": true},
			"loop":   map[string]any{"index": 2, "item": "b"},
		},
	}
	return &props.Scope{
		Steps: steps,
		Connections: mapConnections{
			"slack": map[string]any{"token": "xoxb-secret"},
		},
	}, steps
}

func TestResolveSingleTokenRaw(t *testing.T) {
	scope, _ := newScope()
	r := props.NewResolver(nil)

	res, cens, err := r.Resolve(context.Background(),
		"{{ trigger.items }}", scope,
	)
	assert.NoError(t, err)
	assert.Equal(t, []any{4.0, 5.0, 6.0}, res)
	assert.Equal(t, res, cens)

	res, _, err = r.Resolve(context.Background(),
		"{{trigger.nested.count}}", scope,
	)
	assert.NoError(t, err)
	assert.Equal(t, 3, res)
}

func TestResolveMixedTemplate(t *testing.T) {
	scope, _ := newScope()
	r := props.NewResolver(nil)

	res, _, err := r.Resolve(context.Background(),
		"Hello {{ trigger.name }}, got {{ trigger.nested }} #{{loop.index}}",
		scope,
	)
	assert.NoError(t, err)
	assert.Equal(t, `Hello Ada, got {"count":3} #2`, res)
}

func TestResolveUndefinedDegrades(t *testing.T) {
	scope, _ := newScope()
	r := props.NewResolver(nil)

	res, _, err := r.Resolve(context.Background(), "{{ a.b }}", scope)
	assert.NoError(t, err)
	assert.Equal(t, "", res)

	res, _, err = r.Resolve(context.Background(),
		"before {{ missing.value.deep }} after", scope,
	)
	assert.NoError(t, err)
	assert.Equal(t, "before  after", res)

	res, _, err = r.Resolve(context.Background(), "{{ !!! }}", scope)
	assert.NoError(t, err)
	assert.Equal(t, "", res)
}

func TestResolveWalksStructures(t *testing.T) {
	scope, _ := newScope()
	r := props.NewResolver(nil)

	in := map[string]any{
		"list": []any{"{{ step_1.ok }}", 7, nil},
		"obj":  map[string]any{"name": "{{ trigger.name }}"},
		"raw":  true,
	}
	res, _, err := r.Resolve(context.Background(), in, scope)
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{
		"list": []any{true, 7, nil},
		"obj":  map[string]any{"name": "Ada"},
		"raw":  true,
	}, res)
	assert.Equal(t, "{{ trigger.name }}", in["obj"].(map[string]any)["name"])
}

func TestResolveLoadsLazily(t *testing.T) {
	scope, steps := newScope()
	r := props.NewResolver(nil)

	_, _, err := r.Resolve(context.Background(), "{{ step_1.ok }}", scope)
	assert.NoError(t, err)
	assert.Equal(t, []string{"step_1"}, steps.loaded)
	assert.Equal(t, []bool{false}, steps.iterations)

	_, _, err = r.Resolve(context.Background(),
		"{{ loop.iterations }}", scope,
	)
	assert.NoError(t, err)
	assert.Equal(t, []string{"step_1", "loop"}, steps.loaded)
	assert.Equal(t, []bool{false, true}, steps.iterations)

	_, _, err = r.Resolve(context.Background(),
		"{{ trigger.step_1 }}", scope,
	)
	assert.NoError(t, err)
	assert.Equal(t, []string{"step_1", "loop", "trigger"}, steps.loaded)
}

func TestResolveCensorsConnections(t *testing.T) {
	scope, _ := newScope()
	r := props.NewResolver(nil)

	in := map[string]any{
		"token":  "{{ connections['slack'].token }}",
		"header": "Bearer {{ connections['slack'].token }}",
		"name":   "{{ trigger.name }}",
	}
	res, cens, err := r.Resolve(context.Background(), in, scope)
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{
		"token":  "xoxb-secret",
		"header": "Bearer xoxb-secret",
		"name":   "Ada",
	}, res)
	assert.Equal(t, map[string]any{
		"token":  props.Redacted,
		"header": "Bearer " + props.Redacted,
		"name":   "Ada",
	}, cens)
}

func TestResolveErrorsPropagate(t *testing.T) {
	scope, steps := newScope()
	r := props.NewResolver(nil)

	_, _, err := r.Resolve(context.Background(),
		"{{ connections['github'] }}", scope,
	)
	assert.ErrorIs(t, err, errNoConnection)

	boom := errors.New("store down")
	steps.err = boom
	_, _, err = r.Resolve(context.Background(), "{{ trigger }}", scope)
	assert.ErrorIs(t, err, boom)
}

func TestResolveNoTokens(t *testing.T) {
	r := props.NewResolver(nil)
	res, cens, err := r.Resolve(context.Background(), "plain", nil)
	assert.NoError(t, err)
	assert.Equal(t, "plain", res)
	assert.Equal(t, "plain", cens)
	assert.False(t, props.HasTokens("plain"))
	assert.True(t, props.HasTokens("a {{b}}"))
}

func TestJSSandbox(t *testing.T) {
	scope, _ := newScope()
	r := props.NewResolver(props.NewJSSandbox(0))

	res, _, err := r.Resolve(context.Background(),
		"{{ trigger.items.map(function (x) { return x * 2 }) }}", scope,
	)
	assert.NoError(t, err)
	if list, ok := res.([]any); assert.True(t, ok) && assert.Len(t, list, 3) {
		for i, want := range []float64{8, 10, 12} {
			assert.EqualValues(t, want, list[i])
		}
	}

	res, _, err = r.Resolve(context.Background(), "{{ nope.value }}", scope)
	assert.NoError(t, err)
	assert.Equal(t, "", res)

	sb := props.NewJSSandbox(0)
	_, err = sb.Evaluate(context.Background(), "(function(){while(true){}})()",
		nil,
	)
	assert.ErrorIs(t, err, props.ErrExpressionInterrupted)
}

func TestAleSandbox(t *testing.T) {
	sb := props.NewAleSandbox()
	ctx := context.Background()

	res, err := sb.Evaluate(ctx, "(+ a b)", map[string]any{
		"a": 5.0, "b": 10.0,
	})
	assert.NoError(t, err)
	assert.EqualValues(t, 15, res)

	res, err = sb.Evaluate(ctx, "(> x 10)", map[string]any{"x": 15})
	assert.NoError(t, err)
	assert.Equal(t, true, res)

	res, err = sb.Evaluate(ctx, "(> x 10)", map[string]any{"x": 5})
	assert.NoError(t, err)
	assert.Equal(t, false, res)

	res, err = sb.Evaluate(ctx, "{:total (* a 2)}", map[string]any{"a": 3})
	assert.NoError(t, err)
	if m, ok := res.(map[string]any); assert.True(t, ok) {
		assert.EqualValues(t, 6, m["total"])
	}

	_, err = sb.Evaluate(ctx, "(+ a", map[string]any{"a": 1})
	assert.Error(t, err)

	done, cancel := context.WithCancel(ctx)
	cancel()
	_, err = sb.Evaluate(done, "(+ 1 2)", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAleResolver(t *testing.T) {
	scope, _ := newScope()
	r := props.NewResolver(props.NewAleSandbox())

	res, _, err := r.Resolve(context.Background(), "{{ trigger }}", scope)
	assert.NoError(t, err)
	if m, ok := res.(map[string]any); assert.True(t, ok) {
		assert.Equal(t, "Ada", m["name"])
		assert.Equal(t, []any{4.0, 5.0, 6.0}, m["items"])
	}

	res, _, err = r.Resolve(context.Background(), "n={{ (+ 1 2) }}", scope)
	assert.NoError(t, err)
	assert.Equal(t, "n=3", res)
}
