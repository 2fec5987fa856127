// Package condition evaluates the comparison trees of branch and router
// actions. Evaluation never fails: operands that cannot be compared make
// the comparison false
package condition

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/util"
)

type compareFunc func(*api.Condition) bool

var operators = map[api.ConditionOperator]compareFunc{
	api.TextContains:       textOp(strings.Contains),
	api.TextDoesNotContain: not(textOp(strings.Contains)),
	api.TextExactlyMatches: textOp(func(a, b string) bool {
		return a == b
	}),
	api.TextDoesNotExactly: not(textOp(func(a, b string) bool {
		return a == b
	})),
	api.TextStartsWith:       textOp(strings.HasPrefix),
	api.TextDoesNotStartWith: not(textOp(strings.HasPrefix)),
	api.TextEndsWith:         textOp(strings.HasSuffix),
	api.TextDoesNotEndWith:   not(textOp(strings.HasSuffix)),

	api.NumberIsGreaterThan: numberOp(
		func(a, b float64) bool { return a > b },
		func(a, b string) bool { return a > b },
	),
	api.NumberIsLessThan: numberOp(
		func(a, b float64) bool { return a < b },
		func(a, b string) bool { return a < b },
	),
	api.NumberIsEqualTo: numberOp(
		func(a, b float64) bool { return a == b },
		func(a, b string) bool { return a == b },
	),

	api.BooleanIsTrue: func(c *api.Condition) bool {
		return Truthy(c.FirstValue)
	},
	api.BooleanIsFalse: func(c *api.Condition) bool {
		return !Truthy(c.FirstValue)
	},

	api.DateIsBefore: dateOp(func(a, b time.Time) bool { return a.Before(b) }),
	api.DateIsEqual:  dateOp(func(a, b time.Time) bool { return a.Equal(b) }),
	api.DateIsAfter:  dateOp(func(a, b time.Time) bool { return a.After(b) }),

	api.ListContains: func(c *api.Condition) bool {
		list, ok := AsList(c.FirstValue)
		return ok && listContains(list, c.SecondValue, c.CaseSensitive)
	},
	api.ListDoesNotContain: func(c *api.Condition) bool {
		list, ok := AsList(c.FirstValue)
		return !ok || !listContains(list, c.SecondValue, c.CaseSensitive)
	},
	api.ListIsEmpty: func(c *api.Condition) bool {
		list, ok := AsList(c.FirstValue)
		return ok && len(list) == 0
	},
	api.ListIsNotEmpty: func(c *api.Condition) bool {
		list, ok := AsList(c.FirstValue)
		return ok && len(list) > 0
	},

	api.Exists: func(c *api.Condition) bool {
		return exists(c.FirstValue)
	},
	api.DoesNotExist: func(c *api.Condition) bool {
		return !exists(c.FirstValue)
	},
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
	time.RFC1123Z,
	time.RFC1123,
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006",
}

// Evaluate returns true when any AND-group holds. An empty group holds
func Evaluate(groups [][]api.Condition) bool {
	for _, group := range groups {
		if EvaluateGroup(group) {
			return true
		}
	}
	return false
}

// EvaluateGroup returns true when every condition in the group holds
func EvaluateGroup(group []api.Condition) bool {
	for i := range group {
		if !EvaluateOne(&group[i]) {
			return false
		}
	}
	return true
}

// EvaluateOne evaluates a single comparison. Unknown operators are false
func EvaluateOne(c *api.Condition) bool {
	fn, ok := operators[c.Operator]
	if !ok {
		return false
	}
	return fn(c)
}

func not(fn compareFunc) compareFunc {
	return func(c *api.Condition) bool {
		return !fn(c)
	}
}

func textOp(fn func(a, b string) bool) compareFunc {
	return func(c *api.Condition) bool {
		a := Stringify(c.FirstValue)
		b := Stringify(c.SecondValue)
		if !c.CaseSensitive {
			a = strings.ToLower(a)
			b = strings.ToLower(b)
		}
		return fn(a, b)
	}
}

func numberOp(
	num func(a, b float64) bool, str func(a, b string) bool,
) compareFunc {
	return func(c *api.Condition) bool {
		a := ToNumber(c.FirstValue)
		b := ToNumber(c.SecondValue)
		if math.IsNaN(a) || math.IsNaN(b) {
			return str(Stringify(c.FirstValue), Stringify(c.SecondValue))
		}
		return num(a, b)
	}
}

func dateOp(fn func(a, b time.Time) bool) compareFunc {
	return func(c *api.Condition) bool {
		a, ok := ParseDate(c.FirstValue)
		if !ok {
			return false
		}
		b, ok := ParseDate(c.SecondValue)
		if !ok {
			return false
		}
		return fn(a, b)
	}
}

func listContains(list []any, v any, caseSensitive bool) bool {
	want := Stringify(v)
	if !caseSensitive {
		want = strings.ToLower(want)
	}
	for _, elem := range list {
		got := Stringify(elem)
		if !caseSensitive {
			got = strings.ToLower(got)
		}
		if got == want {
			return true
		}
	}
	return false
}

func exists(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// Stringify renders a value for text comparison
func Stringify(v any) string {
	return util.Stringify(v)
}

// ToNumber coerces a value to a number. Blank strings and nil are zero,
// booleans are zero or one, and anything unparsable is NaN
func ToNumber(v any) float64 {
	switch v := v.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int())
	case rv.CanUint():
		return float64(rv.Uint())
	case rv.CanFloat():
		return rv.Float()
	default:
		return math.NaN()
	}
}

// Truthy applies loose truthiness: false, zero, NaN, nil and the empty
// string are false
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	}
	rv := reflect.ValueOf(v)
	if rv.CanInt() || rv.CanUint() || rv.CanFloat() {
		n := ToNumber(v)
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

// AsList accepts a native slice or a JSON-encoded array
func AsList(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case string:
		var res []any
		if err := json.Unmarshal([]byte(v), &res); err != nil {
			return nil, false
		}
		return res, res != nil
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	res := make([]any, rv.Len())
	for i := range res {
		res[i] = rv.Index(i).Interface()
	}
	return res, true
}

// ParseDate parses RFC3339 and common date layouts, time values, and epoch
// milliseconds
func ParseDate(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		return time.Time{}, false
	case nil, bool:
		return time.Time{}, false
	}
	n := ToNumber(v)
	if math.IsNaN(n) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(n)).UTC(), true
}
