package attention

import (
	"fmt"
	"math/bits"
)

// Allocator provides the byte buffers for call-scoped scratch space and
// for packed weights. Buffers are zero-initialized.
type Allocator interface {
	// Alloc returns a zeroed buffer of n bytes.
	Alloc(n int) []byte
	// AllocArray returns a zeroed buffer of size*count bytes. A size/count
	// product that overflows is a host-contract violation and panics.
	AllocArray(size, count int) []byte
}

// Arena is a call-scoped allocator: it records every buffer it hands
// out and drops them all at once on Release. The zero value is ready to
// use.
type Arena struct {
	chunks [][]byte
}

// NewArena returns an empty arena.
func NewArena() *Arena { return &Arena{} }

// Alloc returns a zeroed buffer of n bytes owned by the arena.
func (a *Arena) Alloc(n int) []byte {
	buf := make([]byte, n)
	a.chunks = append(a.chunks, buf)
	return buf
}

// AllocArray returns a zeroed buffer of size*count bytes, panicking on
// multiplication overflow.
func (a *Arena) AllocArray(size, count int) []byte {
	return a.Alloc(checkedArraySize(size, count))
}

// Release drops every buffer the arena handed out.
func (a *Arena) Release() {
	a.chunks = nil
}

// checkedArraySize computes size*count, treating overflow as a broken
// host contract rather than a recoverable error.
func checkedArraySize(size, count int) int {
	if size < 0 || count < 0 {
		panic(fmt.Sprintf("attention: negative allocation %d x %d", size, count))
	}
	hi, lo := bits.Mul64(uint64(size), uint64(count))
	if hi != 0 || lo > uint64(int(^uint(0)>>1)) {
		panic(fmt.Sprintf("attention: allocation %d x %d overflows", size, count))
	}
	return int(lo)
}
