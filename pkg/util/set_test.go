package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/pkg/util"
)

func TestSetOf(t *testing.T) {
	s := util.SetOf("a", "b", "a")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))

	s.Add("c")
	assert.True(t, s.Contains("c"))
}

func TestAppendUnique(t *testing.T) {
	base := []string{"x", "y"}
	res := util.AppendUnique(base, "y", "z", "z", "x", "w")
	assert.Equal(t, []string{"x", "y", "z", "w"}, res)
	assert.Equal(t, []string{"x", "y"}, base)

	assert.Equal(t, []int{1}, util.AppendUnique(nil, 1, 1))
}
