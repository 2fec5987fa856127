package condition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/internal/engine/condition"
	"github.com/kode4food/argyll/worker/pkg/api"
)

func cond(op api.ConditionOperator, first, second any) api.Condition {
	return api.Condition{
		Operator:    op,
		FirstValue:  first,
		SecondValue: second,
	}
}

func TestTextExactlyMatchesCase(t *testing.T) {
	c := cond(api.TextExactlyMatches, "test", "TeSt")
	assert.True(t, condition.EvaluateOne(&c))

	c.CaseSensitive = true
	assert.False(t, condition.EvaluateOne(&c))
}

func TestTextOperators(t *testing.T) {
	tests := []struct {
		name     string
		cond     api.Condition
		expected bool
	}{
		{"contains", cond(api.TextContains, "Hello World", "world"), true},
		{"contains_miss", cond(api.TextContains, "Hello", "bye"), false},
		{"not_contains", cond(api.TextDoesNotContain, "Hello", "bye"), true},
		{"not_exactly", cond(api.TextDoesNotExactly, "a", "A"), false},
		{"starts", cond(api.TextStartsWith, "Prefix", "pre"), true},
		{"not_starts", cond(api.TextDoesNotStartWith, "Prefix", "fix"), true},
		{"ends", cond(api.TextEndsWith, "Suffix", "FIX"), true},
		{"not_ends", cond(api.TextDoesNotEndWith, "Suffix", "FIX"), false},
		{"number_as_text", cond(api.TextExactlyMatches, 42.0, "42"), true},
		{
			"object_as_json",
			cond(api.TextContains, map[string]any{"Key": "V"}, `"key"`),
			true,
		},
		{"nil_is_empty", cond(api.TextExactlyMatches, nil, ""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, condition.EvaluateOne(&tt.cond))
		})
	}
}

func TestNumberOperators(t *testing.T) {
	tests := []struct {
		name     string
		cond     api.Condition
		expected bool
	}{
		{"greater", cond(api.NumberIsGreaterThan, "10", 9), true},
		{"less", cond(api.NumberIsLessThan, 1.5, "2"), true},
		{"equal", cond(api.NumberIsEqualTo, "3.0", 3), true},
		{"bool_coerce", cond(api.NumberIsEqualTo, true, 1), true},
		{"string_fallback", cond(api.NumberIsGreaterThan, "b", "a"), true},
		{"string_fallback_eq", cond(api.NumberIsEqualTo, "x", "x"), true},
		{"not_greater", cond(api.NumberIsGreaterThan, 1, 2), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, condition.EvaluateOne(&tt.cond))
		})
	}
}

func TestBooleanOperators(t *testing.T) {
	for _, v := range []any{true, 1, "yes", []any{}, map[string]any{}} {
		c := cond(api.BooleanIsTrue, v, nil)
		assert.True(t, condition.EvaluateOne(&c), "%v", v)
	}
	for _, v := range []any{false, 0, 0.0, "", nil} {
		c := cond(api.BooleanIsFalse, v, nil)
		assert.True(t, condition.EvaluateOne(&c), "%v", v)
	}
}

func TestDateOperators(t *testing.T) {
	early := "2024-01-01T00:00:00Z"
	late := "2024-06-01"

	c := cond(api.DateIsBefore, early, late)
	assert.True(t, condition.EvaluateOne(&c))

	c = cond(api.DateIsAfter, early, late)
	assert.False(t, condition.EvaluateOne(&c))

	c = cond(api.DateIsEqual, "2024-01-01", early)
	assert.True(t, condition.EvaluateOne(&c))

	c = cond(api.DateIsEqual, 1704067200000.0, early)
	assert.True(t, condition.EvaluateOne(&c))

	c = cond(api.DateIsBefore, "not a date", late)
	assert.False(t, condition.EvaluateOne(&c))

	c = cond(api.DateIsAfter, late, nil)
	assert.False(t, condition.EvaluateOne(&c))
}

func TestListOperators(t *testing.T) {
	tests := []struct {
		name     string
		cond     api.Condition
		expected bool
	}{
		{"empty_native", cond(api.ListIsEmpty, []any{}, nil), true},
		{"empty_json", cond(api.ListIsEmpty, "[]", nil), true},
		{"empty_absent", cond(api.ListIsEmpty, nil, nil), false},
		{"empty_scalar", cond(api.ListIsEmpty, "abc", nil), false},
		{"not_empty", cond(api.ListIsNotEmpty, `[1,2]`, nil), true},
		{"not_empty_absent", cond(api.ListIsNotEmpty, nil, nil), false},
		{"not_empty_typed", cond(api.ListIsNotEmpty, []int{1}, nil), true},
		{"contains", cond(api.ListContains, []any{"A", "b"}, "a"), true},
		{"contains_num", cond(api.ListContains, "[1,2,3]", 2), true},
		{"not_contains", cond(api.ListDoesNotContain, []any{"a"}, "z"), true},
		{"contains_absent", cond(api.ListContains, nil, "a"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, condition.EvaluateOne(&tt.cond))
		})
	}
}

func TestExistenceOperators(t *testing.T) {
	for _, v := range []any{nil, ""} {
		c := cond(api.Exists, v, nil)
		assert.False(t, condition.EvaluateOne(&c))
		c = cond(api.DoesNotExist, v, nil)
		assert.True(t, condition.EvaluateOne(&c))
	}
	for _, v := range []any{0, false, "x", []any{}} {
		c := cond(api.Exists, v, nil)
		assert.True(t, condition.EvaluateOne(&c), "%v", v)
	}
}

func TestGroups(t *testing.T) {
	yes := cond(api.BooleanIsTrue, true, nil)
	no := cond(api.BooleanIsTrue, false, nil)

	assert.True(t, condition.Evaluate([][]api.Condition{{yes, yes}}))
	assert.False(t, condition.Evaluate([][]api.Condition{{yes, no}}))
	assert.True(t, condition.Evaluate([][]api.Condition{{yes, no}, {yes}}))
	assert.False(t, condition.Evaluate(nil))
	assert.True(t, condition.Evaluate([][]api.Condition{{}}))
}

func TestUnknownOperator(t *testing.T) {
	c := cond("SOUNDS_LIKE", "a", "a")
	assert.False(t, condition.EvaluateOne(&c))
}
