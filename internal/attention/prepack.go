package attention

import (
	"github.com/born-ml/fusedattn/internal/gemm"
	"github.com/born-ml/fusedattn/internal/tensor"
)

// PrePackedWeights is the shareable record of packed Q/K/V weight
// buffers, one buffer per branch with one sub-buffer per head laid out
// contiguously.
type PrePackedWeights struct {
	Buffers     [3][]byte
	BufferSizes [3]int // per-head packed size in bytes
	WeightShape tensor.Shape
}

// PrePack transforms the projection weight into the fast-multiply
// representation so Compute can use the packed path. It is a build-phase
// operation.
//
// Packing silently declines — returning false and leaving the operator
// on the always-correct unpacked path — when slot is not the weight
// slot, the weight is not a rank-2 merged matrix, a resolved hidden
// size is zero or not divisible by NumHeads, or the kernel reports the
// shape unpackable.
//
// When shared is non-nil the packed buffers are also recorded there so
// the host can hand them to other operator instances through
// UseSharedPrePackedBuffers. Packing is deterministic: identical weight
// content always yields byte-identical buffers, which lets shared
// records be keyed by content hash.
func (op *Operator) PrePack(weights *tensor.RawTensor, slot int, alloc Allocator, shared *PrePackedWeights) bool {
	if slot != WeightsSlot || weights == nil {
		return false
	}
	if !op.cfg.UseMergedWeights {
		// Packing assumes the merged column layout.
		return false
	}

	op.weightShape = weights.Shape().Clone()
	dims := op.weightShape
	if len(dims) != 2 {
		return false
	}

	w32, err := tensor.WidenToFloat32(weights)
	if err != nil {
		return false
	}
	wdata := w32.AsFloat32()
	inputHiddenSize := dims[0]

	var hiddenQ, hiddenK, hiddenV int
	if len(op.cfg.QKVHiddenSizes) != 0 {
		if len(op.cfg.QKVHiddenSizes) != 3 {
			return false
		}
		hiddenQ = op.cfg.QKVHiddenSizes[0]
		hiddenK = op.cfg.QKVHiddenSizes[1]
		hiddenV = op.cfg.QKVHiddenSizes[2]
		if hiddenQ == 0 || hiddenK == 0 || hiddenV == 0 {
			return false
		}
		if hiddenQ%op.cfg.NumHeads != 0 || hiddenK%op.cfg.NumHeads != 0 || hiddenV%op.cfg.NumHeads != 0 {
			return false
		}
	} else {
		hidden := dims[1] / 3
		if hidden%op.cfg.NumHeads != 0 {
			return false
		}
		hiddenQ, hiddenK, hiddenV = hidden, hidden, hidden
	}

	// The pack loop strides the weight rows by the resolved column sum;
	// a weight whose columns disagree with it is unpackable.
	if hiddenQ+hiddenK+hiddenV != dims[1] {
		return false
	}

	headSizes := [3]int{hiddenQ / op.cfg.NumHeads, hiddenK / op.cfg.NumHeads, hiddenV / op.cfg.NumHeads}
	colStride := hiddenQ + hiddenK + hiddenV
	branchStart := [3]int{0, hiddenQ, hiddenQ + hiddenK}

	if alloc == nil {
		alloc = heapAlloc{}
	}

	for b := 0; b < 3; b++ {
		if !op.packWeight(b, alloc, headSizes[b], inputHiddenSize, wdata[branchStart[b]:], colStride, shared) {
			// All or nothing: a half-packed operator would mix offset
			// schemes between branches.
			op.dropPacked(shared)
			return false
		}
	}

	op.isPrepack = true
	if shared != nil {
		shared.WeightShape = op.weightShape.Clone()
		op.sharedPacked = true
	}
	return true
}

// packWeight packs one branch: one buffer of (per-head packed size x
// NumHeads) bytes, packing each head's column slice in turn.
func (op *Operator) packWeight(qkvIndex int, alloc Allocator, headSize, inputHiddenSize int, wdata []float32, colStride int, shared *PrePackedWeights) bool {
	packbSize := gemm.PackBSize(headSize, inputHiddenSize)
	if packbSize == 0 {
		return false
	}

	// AllocArray zero-fills, so panel padding is deterministic and
	// identical inputs hash identically when the buffer is shared.
	buf := alloc.AllocArray(packbSize, op.cfg.NumHeads)
	op.packedWeights[qkvIndex] = buf
	op.packedSizes[qkvIndex] = packbSize

	for i := 0; i < op.cfg.NumHeads; i++ {
		gemm.PackB(headSize, inputHiddenSize, wdata[i*headSize:], colStride, buf[i*packbSize:])
	}

	if shared != nil {
		shared.Buffers[qkvIndex] = buf
		shared.BufferSizes[qkvIndex] = packbSize
	}
	return true
}

// dropPacked releases any branch buffers packed before a failure.
func (op *Operator) dropPacked(shared *PrePackedWeights) {
	op.packedWeights = [3][]byte{}
	op.packedSizes = [3]int{}
	if shared != nil {
		shared.Buffers = [3][]byte{}
		shared.BufferSizes = [3]int{}
	}
}

// UseSharedPrePackedBuffers adopts externally supplied packed buffers
// as this operator's Q/K/V packed weights. The buffers stay owned by
// their record (and whatever cache holds it); the operator never frees
// them. Returns false for any slot other than the weight slot.
func (op *Operator) UseSharedPrePackedBuffers(pw *PrePackedWeights, slot int) bool {
	if slot != WeightsSlot || pw == nil {
		return false
	}
	op.packedWeights = pw.Buffers
	op.packedSizes = pw.BufferSizes
	if len(op.weightShape) == 0 {
		op.weightShape = pw.WeightShape.Clone()
	}
	op.isPrepack = true
	op.sharedPacked = true
	return true
}

// heapAlloc is the build-phase allocator: packed weights outlive any
// call arena.
type heapAlloc struct{}

func (heapAlloc) Alloc(n int) []byte { return make([]byte, n) }

func (heapAlloc) AllocArray(size, count int) []byte {
	return make([]byte, checkedArraySize(size, count))
}
