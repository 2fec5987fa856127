package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/pkg/util"
)

func TestStringify(t *testing.T) {
	assert.Equal(t, "", util.Stringify(nil))
	assert.Equal(t, "plain", util.Stringify("plain"))
	assert.Equal(t, "6", util.Stringify(6.0))
	assert.Equal(t, "1.5", util.Stringify(1.5))
	assert.Equal(t, "7", util.Stringify(7))
	assert.Equal(t, "true", util.Stringify(true))
	assert.Equal(t, `{"a":[1,2]}`, util.Stringify(map[string]any{
		"a": []int{1, 2},
	}))
}
