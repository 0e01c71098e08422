package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniq(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Uniq([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, Uniq([]string{}))
	assert.Equal(t, []int{3, 1, 2}, Uniq([]int{3, 1, 3, 2, 1}))
}

func TestPartition(t *testing.T) {
	even, odd := Partition([]int{1, 2, 3, 4, 5}, func(n int) bool { return n%2 == 0 })
	assert.Equal(t, []int{2, 4}, even)
	assert.Equal(t, []int{1, 3, 5}, odd)

	yes, no := Partition([]string{}, func(string) bool { return true })
	assert.Nil(t, yes)
	assert.Nil(t, no)
}
