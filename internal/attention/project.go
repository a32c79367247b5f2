package attention

import (
	"unsafe"

	"github.com/born-ml/fusedattn/internal/gemm"
	"github.com/born-ml/fusedattn/internal/parallel"
)

// Branch indices into the fused projection.
const (
	branchQ = 0
	branchK = 1
	branchV = 2
)

// projBranch describes one of the Q/K/V projections in a form the
// fan-out can consume uniformly.
type projBranch struct {
	src      []float32 // activation [batch, rows, hidden_in]
	rows     int       // sequence rows this branch projects
	dst      []float32 // [batch, heads, rows, headSize]
	headSize int
	biasOff  int // start of this branch's block in the bias vector

	// Unpacked path only.
	weights []float32
	ldb     int // column stride of the weight storage
	baseCol int // starting column of this branch's block
}

// runProjection computes Q = bias_q + input·W_q (and likewise K, V)
// across a virtual index space of 3*batch*heads units, one unit per
// (branch, batch, head) triple. Units write disjoint destination ranges
// and the call returns only after every unit has finished.
func (op *Operator) runProjection(p Params, bias []float32, branches *[3]projBranch, pool parallel.Config) {
	loopLen := 3 * p.BatchSize * p.NumHeads
	cost := float64(p.SequenceLength) * float64(p.HeadSizeV()) * float64(p.InputHiddenSize)

	parallel.ForCost(loopLen, cost, func(i int) {
		batchIndex := (i / 3) / p.NumHeads
		headIndex := (i / 3) % p.NumHeads
		qkvIndex := i % 3

		br := &branches[qkvIndex]
		headSize := br.headSize
		inputOffset := batchIndex * br.rows * p.InputHiddenSize
		dstOffset := (batchIndex*p.NumHeads + headIndex) * (br.rows * headSize)
		biasOffset := br.biasOff + headIndex*headSize

		// Broadcast the (head, branch) bias slice across every row, then
		// accumulate the multiply on top of it: result = bias + input·W.
		// Accumulating onto the broadcast bias, rather than adding bias
		// after the multiply, keeps bit parity with the unfused graph.
		dst := br.dst[dstOffset : dstOffset+br.rows*headSize]
		slice := bias[biasOffset : biasOffset+headSize]
		for row := 0; row < br.rows; row++ {
			copy(dst[row*headSize:(row+1)*headSize], slice)
		}

		if op.isPrepack {
			packed := op.packedWeights[qkvIndex][headIndex*op.packedSizes[qkvIndex]:]
			gemm.GemmPacked(br.rows, headSize, p.InputHiddenSize, 1,
				br.src[inputOffset:], p.InputHiddenSize,
				packed, 1, dst, headSize)
		} else {
			// Columns of different heads and branches interleave in the
			// raw weight layout; the stride stays the full storage width
			// while the offset selects this unit's column block.
			weightsOffset := br.baseCol + headIndex*headSize
			gemm.Gemm(false, false, br.rows, headSize, p.InputHiddenSize, 1,
				br.src[inputOffset:], p.InputHiddenSize,
				br.weights[weightsOffset:], br.ldb,
				1, dst, headSize)
		}
	}, pool)
}

// f32sOf reinterprets an allocator buffer as float32 storage.
func f32sOf(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	//nolint:gosec // zero-copy view over an allocator-provided buffer
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
