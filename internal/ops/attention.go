package ops

import (
	"fmt"
	"sync"

	"github.com/born-ml/fusedattn/internal/attention"
	"github.com/born-ml/fusedattn/internal/tensor"
)

// attentionOps compiles graph nodes into attention operators once and
// reuses them across calls. Compilation also pre-packs the projection
// weight through a shared cache, so nodes carrying identical weights
// share one packed copy.
type attentionOps struct {
	mu       sync.Mutex
	compiled map[*Node]*attention.Operator
	cache    *attention.SharedCache
}

func (r *Registry) registerAttention() {
	r.attn.compiled = make(map[*Node]*attention.Operator)
	r.attn.cache = attention.NewSharedCache()
	r.Register("Attention", r.attentionHandler)
}

// attentionConfig reads the node attributes into operator attributes.
func attentionConfig(node *Node) (attention.Config, error) {
	heads := GetAttrInt(node, "num_heads", 0)
	if heads < 1 {
		return attention.Config{}, fmt.Errorf("attention node %q: num_heads attribute is required", node.Name)
	}

	cfg := attention.Config{
		NumHeads:         int(heads),
		Unidirectional:   GetAttrInt(node, "unidirectional", 0) != 0,
		UseMergedWeights: GetAttrInt(node, "use_merged_weights", 1) != 0,
	}
	if sizes := GetAttrInts(node, "qkv_hidden_sizes"); sizes != nil {
		cfg.QKVHiddenSizes = make([]int, len(sizes))
		for i, s := range sizes {
			cfg.QKVHiddenSizes[i] = int(s)
		}
	}
	return cfg, nil
}

// operatorFor returns the compiled operator for a node, building it on
// first use. The weight operand is pre-packed when it qualifies; a
// disqualified weight leaves the operator on the unpacked path.
func (a *attentionOps) operatorFor(node *Node, weights *tensor.RawTensor) (*attention.Operator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if op, ok := a.compiled[node]; ok {
		return op, nil
	}

	cfg, err := attentionConfig(node)
	if err != nil {
		return nil, err
	}
	op, err := attention.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("attention node %q: %w", node.Name, err)
	}
	a.cache.PrePackShared(op, weights, attention.WeightsSlot, nil)

	a.compiled[node] = op
	return op, nil
}

func (r *Registry) attentionHandler(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	slot := func(idx int) *tensor.RawTensor {
		if idx < len(inputs) {
			return inputs[idx]
		}
		return nil
	}

	op, err := r.attn.operatorFor(node, slot(attention.WeightsSlot))
	if err != nil {
		return nil, err
	}

	in := attention.Inputs{
		Input:       slot(attention.InputSlot),
		Weights:     slot(attention.WeightsSlot),
		Bias:        slot(attention.BiasSlot),
		MaskIndex:   slot(attention.MaskIndexSlot),
		Past:        slot(attention.PastSlot),
		ExtraAddQK:  slot(attention.ExtraAddQKSlot),
		Key:         slot(attention.KeySlot),
		Value:       slot(attention.ValueSlot),
		WeightKey:   slot(attention.WeightKeySlot),
		WeightValue: slot(attention.WeightValueSlot),
	}

	// The present-state slot is bound only when the graph consumes it.
	res := &attention.Results{SkipPresent: len(node.Outputs) < 2}
	call := &attention.Call{Inputs: in, Outputs: res, Alloc: ctx.Alloc, Pool: ctx.Pool}
	if err := op.Compute(call); err != nil {
		return nil, fmt.Errorf("attention node %q: %w", node.Name, err)
	}

	outs := []*tensor.RawTensor{res.Out}
	if res.Present != nil {
		outs = append(outs, res.Present)
	}
	return outs, nil
}
