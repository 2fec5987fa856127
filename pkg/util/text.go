package util

import (
	"encoding/json"
	"strconv"
)

// Stringify renders a value the way templates and text comparisons see it:
// strings as-is, nil as empty, everything else as JSON
func Stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
