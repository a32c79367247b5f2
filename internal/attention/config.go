package attention

import "github.com/born-ml/fusedattn/internal/tensor"

// Input slot indices of the operator. Slots KeySlot and later are used
// only when UseMergedWeights is false.
const (
	InputSlot = iota
	WeightsSlot
	BiasSlot
	MaskIndexSlot
	PastSlot
	ExtraAddQKSlot
	KeySlot
	ValueSlot
	WeightKeySlot
	WeightValueSlot
)

// Output slot indices.
const (
	OutputSlot  = 0
	PresentSlot = 1
)

// Config holds the operator attributes fixed at model build time.
type Config struct {
	// NumHeads is the number of parallel attention heads. Required.
	NumHeads int

	// Unidirectional enables causal masking: a position attends only to
	// itself and earlier positions.
	Unidirectional bool

	// QKVHiddenSizes optionally overrides the per-branch hidden sizes
	// when the merged weight's columns are not split equally three ways.
	// Empty or exactly 3 elements; the first two must be equal and every
	// element must divide evenly by NumHeads.
	QKVHiddenSizes []int

	// UseMergedWeights selects the input configuration: one merged
	// [hidden_in, hidden_q+hidden_k+hidden_v] weight matrix when true,
	// separate Q/K/V activations and weight matrices when false.
	UseMergedWeights bool

	// Scorer overrides the attention-score engine. Nil selects the
	// built-in masked-softmax scorer.
	Scorer Scorer
}

// Inputs carries the operator's input operands. Optional operands are
// nil when absent.
type Inputs struct {
	Input      *tensor.RawTensor // [batch, seq, hidden_in] float32
	Weights    *tensor.RawTensor // [hidden_in, hidden_q+hidden_k+hidden_v] float32 or float16
	Bias       *tensor.RawTensor // [hidden_q+hidden_k+hidden_v] float32
	MaskIndex  *tensor.RawTensor // optional, int32, rank 1-4
	Past       *tensor.RawTensor // optional, [2, batch, heads, past_seq, head_size] float32
	ExtraAddQK *tensor.RawTensor // optional, [batch, heads, seq, seq] float32

	// Separate-weights configuration only.
	Key         *tensor.RawTensor // [batch, target_seq, hidden_in] float32
	Value       *tensor.RawTensor // [batch, target_seq, hidden_in] float32
	WeightKey   *tensor.RawTensor // [hidden_in, hidden_k] float32 or float16
	WeightValue *tensor.RawTensor // [hidden_in, hidden_v] float32 or float16
}

// MaskKind tags the resolved mask variant. Validation resolves the
// mask's rank semantics exactly once; downstream code switches on the
// kind and never re-derives shape meaning.
type MaskKind int

const (
	// MaskNone means no masking beyond the causal flag.
	MaskNone MaskKind = iota
	// MaskPerBatch is a rank-1 [batch] vector of valid key lengths.
	MaskPerBatch
	// MaskPerBatchPair is a rank-1 [2*batch] vector of per-batch end
	// positions followed by per-batch start positions.
	MaskPerBatchPair
	// MaskBatchTotal is a rank-2 [batch, total_seq] 0/1 matrix.
	MaskBatchTotal
	// MaskBatchSeqTotal is a rank-3 [batch, seq, total_seq] 0/1 tensor.
	MaskBatchSeqTotal
	// MaskSquareMax is a rank-4 [batch, 1, max_seq, max_seq] 0/1 tensor
	// with max_seq >= total_seq.
	MaskSquareMax
)

// Mask is the normalized mask: a kind plus the original index tensor
// (nil for MaskNone).
type Mask struct {
	Kind  MaskKind
	Index *tensor.RawTensor
}

// Params is the normalized shape descriptor produced by validation.
// Every legal input configuration resolves into one Params value; no
// later stage depends on which configuration was originally supplied.
type Params struct {
	BatchSize       int
	SequenceLength  int // query rows
	InputHiddenSize int

	HiddenQ int
	HiddenK int
	HiddenV int

	NumHeads int

	TargetSequenceLength int // key/value rows produced by this call
	PastSequenceLength   int
	TotalSequenceLength  int // past + target

	Mask Mask
}

// HeadSizeQ returns the per-head width of the Q branch.
func (p Params) HeadSizeQ() int { return p.HiddenQ / p.NumHeads }

// HeadSizeK returns the per-head width of the K branch.
func (p Params) HeadSizeK() int { return p.HiddenK / p.NumHeads }

// HeadSizeV returns the per-head width of the V branch.
func (p Params) HeadSizeV() int { return p.HiddenV / p.NumHeads }
