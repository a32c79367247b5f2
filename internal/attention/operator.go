package attention

import (
	"github.com/born-ml/fusedattn/internal/parallel"
	"github.com/born-ml/fusedattn/internal/tensor"
)

// elementSize is the byte width of the working precision (float32).
const elementSize = 4

// Operator is a compiled attention operator. It is built once per model
// load; after the build phase (New, PrePack/PrePackShared or
// UseSharedPrePackedBuffers) it is immutable and may be shared by
// concurrent inference calls.
type Operator struct {
	cfg    Config
	scorer Scorer

	// Pre-packing state. Written only during the build phase, which the
	// host serializes with respect to inference calls; read-only after.
	packedWeights [3][]byte
	packedSizes   [3]int // per-head packed size in bytes
	isPrepack     bool
	sharedPacked  bool
	weightShape   tensor.Shape
}

// New builds an operator from its attributes.
func New(cfg Config) (*Operator, error) {
	if cfg.NumHeads < 1 {
		return nil, inputErrf("num_heads", "must be at least 1, got %d", cfg.NumHeads)
	}
	if n := len(cfg.QKVHiddenSizes); n != 0 && n != 3 {
		return nil, inputErrf("qkv_hidden_sizes", "attribute should have 3 elements, got %d", n)
	}
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = defaultScorer{}
	}
	return &Operator{cfg: cfg, scorer: scorer}, nil
}

// Config returns the operator's attributes.
func (op *Operator) Config() Config { return op.cfg }

// IsPacked reports whether the operator runs on the pre-packed weight
// path.
func (op *Operator) IsPacked() bool { return op.isPrepack }

// OutputBinding supplies output buffers for a call. Output returns the
// buffer for slot idx with the given shape, or nil when the slot is not
// bound by the calling graph.
type OutputBinding interface {
	Output(idx int, shape tensor.Shape) *tensor.RawTensor
}

// Results is the default output binding: it allocates each requested
// slot on demand and keeps it for the caller.
type Results struct {
	Out *tensor.RawTensor // primary output [batch, seq, hidden_v]

	// Present holds the present state. It stays nil when SkipPresent is
	// set or when the configuration cannot produce present state
	// (unequal K and V hidden sizes).
	Present *tensor.RawTensor

	// SkipPresent leaves the present-state slot unbound, for callers
	// that never feed past state and do not want the cache tensor.
	SkipPresent bool
}

// Output implements OutputBinding.
func (r *Results) Output(idx int, shape tensor.Shape) *tensor.RawTensor {
	switch idx {
	case OutputSlot:
		if r.Out == nil {
			r.Out = mustNewFloat32(shape)
		}
		return r.Out
	case PresentSlot:
		if r.SkipPresent {
			return nil
		}
		if r.Present == nil {
			r.Present = mustNewFloat32(shape)
		}
		return r.Present
	}
	return nil
}

func mustNewFloat32(shape tensor.Shape) *tensor.RawTensor {
	t, err := tensor.NewRaw(shape, tensor.Float32)
	if err != nil {
		panic(err)
	}
	return t
}

// Call carries the per-call operands, output binding and resources.
type Call struct {
	Inputs  Inputs
	Outputs OutputBinding
	Alloc   Allocator       // nil: a fresh Arena, released at call exit
	Pool    parallel.Config // zero value: parallel.DefaultConfig()
}

// Compute runs the operator: validation, Q/K/V projection, then the
// attention-score engine. The primary output and, when bound, the
// present state are written through the call's output binding.
func (op *Operator) Compute(call *Call) error {
	in := call.Inputs

	weights := in.Weights
	wshape := op.weightShape
	if op.isPrepack {
		// The raw weight operand is dead on the packed path.
		weights = nil
	} else {
		if weights == nil {
			return inputErrf("weights", "is required")
		}
		wshape = weights.Shape()
	}

	p, err := op.cfg.checkInputs(in, wshape)
	if err != nil {
		return err
	}

	pool := call.Pool
	if pool.NumWorkers == 0 {
		pool = parallel.DefaultConfig()
	}

	alloc := call.Alloc
	if alloc == nil {
		arena := NewArena()
		defer arena.Release()
		alloc = arena
	}

	if call.Outputs == nil {
		panic("attention: output binding is required")
	}
	output := call.Outputs.Output(OutputSlot, tensor.Shape{p.BatchSize, p.SequenceLength, p.HiddenV})
	if output == nil {
		panic("attention: output slot 0 must be bound")
	}
	// The present layout carries one head width for both K and V planes,
	// so the slot is undefined when the two widths differ. A past input
	// with unequal widths is already rejected by validation.
	var present *tensor.RawTensor
	if p.HiddenK == p.HiddenV {
		present = op.getPresent(call.Outputs, in.Past, p.BatchSize, p.HeadSizeV(), p.TargetSequenceLength)
	}

	branches, err := op.resolveBranches(p, in)
	if err != nil {
		return err
	}

	// One contiguous scratch region, Q then K then V.
	qLen := p.BatchSize * p.SequenceLength * p.HiddenQ
	kLen := p.BatchSize * p.TargetSequenceLength * p.HiddenK
	vLen := p.BatchSize * p.TargetSequenceLength * p.HiddenV
	scratch := f32sOf(alloc.AllocArray(elementSize, qLen+kLen+vLen))
	branches[branchQ].dst = scratch[:qLen]
	branches[branchK].dst = scratch[qLen : qLen+kLen]
	branches[branchV].dst = scratch[qLen+kLen:]

	op.runProjection(p, in.Bias.AsFloat32(), &branches, pool)

	// The projection fan-out has fully completed here; scoring may now
	// read Q, K and V.
	return op.scorer.Apply(&ScoreContext{
		Q:              branches[branchQ].dst,
		K:              branches[branchK].dst,
		V:              branches[branchV].dst,
		Params:         p,
		Unidirectional: op.cfg.Unidirectional,
		Past:           in.Past,
		ExtraAddQK:     in.ExtraAddQK,
		Output:         output,
		Present:        present,
		Pool:           pool,
	})
}

// getPresent computes the present-state shape
// [2, batch, num_heads, past_len+seq_len, head_size] and obtains the
// buffer from the output binding. A caller that supplies past state
// promises a present-state slot; breaking that promise is a fatal
// host-contract violation, not a user error.
func (op *Operator) getPresent(outs OutputBinding, past *tensor.RawTensor, batchSize, headSize, sequenceLength int) *tensor.RawTensor {
	dims := tensor.Shape{2, batchSize, op.cfg.NumHeads, sequenceLength, headSize}
	if past != nil {
		dims[3] += past.Shape()[3]
	}
	present := outs.Output(PresentSlot, dims)
	if past != nil && present == nil {
		panic("attention: expect present state output to be bound when past state input is given")
	}
	return present
}

// resolveBranches maps the validated configuration onto three uniform
// projection branches, so the fan-out never branches on whether merged
// or separate weights were supplied.
func (op *Operator) resolveBranches(p Params, in Inputs) ([3]projBranch, error) {
	var branches [3]projBranch

	inputData := in.Input.AsFloat32()
	branches[branchQ] = projBranch{
		src:      inputData,
		rows:     p.SequenceLength,
		headSize: p.HeadSizeQ(),
		biasOff:  0,
	}
	branches[branchK] = projBranch{
		src:      inputData,
		rows:     p.TargetSequenceLength,
		headSize: p.HeadSizeK(),
		biasOff:  p.HiddenQ,
	}
	branches[branchV] = projBranch{
		src:      inputData,
		rows:     p.TargetSequenceLength,
		headSize: p.HeadSizeV(),
		biasOff:  p.HiddenQ + p.HiddenK,
	}

	if op.isPrepack {
		return branches, nil
	}

	if op.cfg.UseMergedWeights {
		wdata, err := weightData(in.Weights, "weights")
		if err != nil {
			return branches, err
		}
		ldb := p.HiddenQ + p.HiddenK + p.HiddenV
		baseCols := [3]int{0, p.HiddenQ, p.HiddenQ + p.HiddenK}
		for b := range branches {
			branches[b].weights = wdata
			branches[b].ldb = ldb
			branches[b].baseCol = baseCols[b]
		}
		return branches, nil
	}

	qw, err := weightData(in.Weights, "weights")
	if err != nil {
		return branches, err
	}
	kw, err := weightData(in.WeightKey, "weight_key")
	if err != nil {
		return branches, err
	}
	vw, err := weightData(in.WeightValue, "weight_value")
	if err != nil {
		return branches, err
	}
	branches[branchQ].weights, branches[branchQ].ldb = qw, p.HiddenQ
	branches[branchK].weights, branches[branchK].ldb = kw, p.HiddenK
	branches[branchV].weights, branches[branchV].ldb = vw, p.HiddenV
	branches[branchK].src = in.Key.AsFloat32()
	branches[branchV].src = in.Value.AsFloat32()
	return branches, nil
}

// weightData returns a weight operand as float32 data, widening
// half-precision storage once.
func weightData(t *tensor.RawTensor, name string) ([]float32, error) {
	w, err := tensor.WidenToFloat32(t)
	if err != nil {
		return nil, inputErrf(name, "%v", err)
	}
	return w.AsFloat32(), nil
}
