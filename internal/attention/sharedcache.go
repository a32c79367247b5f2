package attention

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/born-ml/fusedattn/internal/tensor"
)

// SharedCache shares pre-packed weight buffers between operator
// instances (typically sessions loading the same model weights).
// Entries are keyed by weight content hash and reference counted:
// buffers live as long as their longest holder.
type SharedCache struct {
	mu      sync.Mutex
	entries map[string]*sharedEntry
}

type sharedEntry struct {
	pw   PrePackedWeights
	refs int
}

// NewSharedCache returns an empty cache.
func NewSharedCache() *SharedCache {
	return &SharedCache{entries: make(map[string]*sharedEntry)}
}

// WeightKey returns the cache key for a weight tensor: a hash over its
// dtype, dimensions and raw content. Packing is deterministic, so equal
// keys imply byte-identical packed buffers.
func WeightKey(t *tensor.RawTensor) string {
	h := sha256.New()
	var word [8]byte
	binary.LittleEndian.PutUint64(word[:], uint64(t.DType()))
	h.Write(word[:])
	for _, d := range t.Shape() {
		binary.LittleEndian.PutUint64(word[:], uint64(d))
		h.Write(word[:])
	}
	h.Write(t.Data()[:t.ByteSize()])
	return hex.EncodeToString(h.Sum(nil))
}

// PrePackShared pre-packs op's weights through the cache: a content
// hit adopts the cached buffers, a miss packs once and publishes the
// result. Returns false when packing is disqualified; the operator then
// stays on the unpacked path and the cache is untouched.
//
// Like PrePack this is a build-phase operation; the host serializes it
// with respect to inference calls.
func (c *SharedCache) PrePackShared(op *Operator, weights *tensor.RawTensor, slot int, alloc Allocator) bool {
	if slot != WeightsSlot || weights == nil {
		return false
	}
	key := WeightKey(weights)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		if !op.UseSharedPrePackedBuffers(&e.pw, slot) {
			return false
		}
		e.refs++
		return true
	}

	var pw PrePackedWeights
	if !op.PrePack(weights, slot, alloc, &pw) {
		return false
	}
	c.entries[key] = &sharedEntry{pw: pw, refs: 1}
	return true
}

// Release drops one holder of the given weight content, removing the
// entry when the last holder is gone. Operators that adopted the entry
// must not be used on the packed path afterwards.
func (c *SharedCache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(c.entries, key)
	}
}

// Len returns the number of distinct weight contents currently cached.
func (c *SharedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Refs returns the holder count for a key, 0 when absent.
func (c *SharedCache) Refs(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.refs
	}
	return 0
}
