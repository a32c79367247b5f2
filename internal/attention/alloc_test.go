package attention

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena(t *testing.T) {
	a := NewArena()

	buf := a.Alloc(16)
	require.Len(t, buf, 16)
	for _, b := range buf {
		assert.Zero(t, b)
	}

	arr := a.AllocArray(4, 3)
	assert.Len(t, arr, 12)

	a.Release()
	assert.Empty(t, a.chunks)
}

func TestAllocArray_Overflow(t *testing.T) {
	a := NewArena()
	assert.Panics(t, func() { a.AllocArray(math.MaxInt, 2) })
	assert.Panics(t, func() { a.AllocArray(-1, 2) })
}
