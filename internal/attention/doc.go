// Package attention implements a fused multi-head attention operator for
// CPU inference: Q/K/V projection from merged or separate weight
// matrices, optional causal masking, key/value state carried across
// decoding steps, optional additive score bias, and offline weight
// pre-packing shared across operator instances.
//
// An Operator is built once per model load and is immutable during
// inference; concurrent calls may share one Operator. Pre-packing
// (PrePack, UseSharedPrePackedBuffers, SharedCache) belongs to the build
// phase and must be serialized by the host with respect to inference
// calls.
//
// Example:
//
//	op, _ := attention.New(attention.Config{NumHeads: 8, UseMergedWeights: true})
//	op.PrePack(weights, attention.WeightsSlot, nil, nil)
//	res := &attention.Results{}
//	err := op.Compute(&attention.Call{
//		Inputs:  attention.Inputs{Input: x, Weights: weights, Bias: bias},
//		Outputs: res,
//	})
package attention
