// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package fusedattn provides a fused multi-head-attention CPU operator
// for tensor-graph inference engines.
//
// The operator fuses input validation, the Q/K/V projections and the
// hand-off to a masked-softmax score engine into one call. Weights can
// be pre-packed into a cache-friendly per-head layout at model load and
// shared between operator instances holding identical weight content.
//
// Example:
//
//	op, err := fusedattn.New(fusedattn.Config{NumHeads: 12, UseMergedWeights: true})
//	if err != nil {
//		log.Fatal(err)
//	}
//	op.PrePack(weights, fusedattn.WeightsSlot, nil, nil)
//
//	res := &fusedattn.Results{}
//	err = op.Compute(&fusedattn.Call{
//		Inputs:  fusedattn.Inputs{Input: hidden, Weights: weights, Bias: bias},
//		Outputs: res,
//	})
package fusedattn

import (
	"github.com/born-ml/fusedattn/internal/attention"
	"github.com/born-ml/fusedattn/internal/parallel"
	"github.com/born-ml/fusedattn/internal/tensor"
)

// Tensor substrate

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float16 DataType = tensor.Float16
	Int32   DataType = tensor.Int32
)

// RawTensor is the low-level tensor representation.
type RawTensor = tensor.RawTensor

// NewRaw creates a zero-initialized tensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromFloat32 creates a Float32 tensor from a Go slice (copied).
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape)
}

// FromInt32 creates an Int32 tensor from a Go slice (copied).
func FromInt32(data []int32, shape Shape) (*RawTensor, error) {
	return tensor.FromInt32(data, shape)
}

// FromFloat16Bits creates a Float16 tensor from raw half-precision bit
// patterns.
func FromFloat16Bits(bits []uint16, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat16Bits(bits, shape)
}

// Operator surface

// Config holds the operator attributes fixed at model build time.
type Config = attention.Config

// Inputs carries the operator's input operands.
type Inputs = attention.Inputs

// Params is the normalized shape descriptor produced by validation.
type Params = attention.Params

// Mask is the normalized mask resolved by validation.
type Mask = attention.Mask

// MaskKind tags the resolved mask variant.
type MaskKind = attention.MaskKind

// Mask variants.
const (
	MaskNone          MaskKind = attention.MaskNone
	MaskPerBatch      MaskKind = attention.MaskPerBatch
	MaskPerBatchPair  MaskKind = attention.MaskPerBatchPair
	MaskBatchTotal    MaskKind = attention.MaskBatchTotal
	MaskBatchSeqTotal MaskKind = attention.MaskBatchSeqTotal
	MaskSquareMax     MaskKind = attention.MaskSquareMax
)

// Input slot indices of the operator.
const (
	InputSlot       = attention.InputSlot
	WeightsSlot     = attention.WeightsSlot
	BiasSlot        = attention.BiasSlot
	MaskIndexSlot   = attention.MaskIndexSlot
	PastSlot        = attention.PastSlot
	ExtraAddQKSlot  = attention.ExtraAddQKSlot
	KeySlot         = attention.KeySlot
	ValueSlot       = attention.ValueSlot
	WeightKeySlot   = attention.WeightKeySlot
	WeightValueSlot = attention.WeightValueSlot
)

// Output slot indices.
const (
	OutputSlot  = attention.OutputSlot
	PresentSlot = attention.PresentSlot
)

// Operator is a compiled attention operator.
type Operator = attention.Operator

// Call carries the per-call operands, output binding and resources.
type Call = attention.Call

// OutputBinding supplies output buffers for a call.
type OutputBinding = attention.OutputBinding

// Results is the default output binding.
type Results = attention.Results

// Scorer is the attention-score engine contract.
type Scorer = attention.Scorer

// ScoreContext hands projected activations to a score engine.
type ScoreContext = attention.ScoreContext

// InputError reports an invalid input operand or attribute.
type InputError = attention.InputError

// Allocator provides byte buffers for scratch space and packed weights.
type Allocator = attention.Allocator

// Arena is a call-scoped allocator.
type Arena = attention.Arena

// PrePackedWeights is the shareable record of packed weight buffers.
type PrePackedWeights = attention.PrePackedWeights

// SharedCache shares pre-packed weight buffers between operators.
type SharedCache = attention.SharedCache

// PoolConfig configures the worker fan-out of a call.
type PoolConfig = parallel.Config

// New builds an operator from its attributes.
func New(cfg Config) (*Operator, error) {
	return attention.New(cfg)
}

// NewArena returns an empty call-scoped allocator.
func NewArena() *Arena {
	return attention.NewArena()
}

// NewSharedCache returns an empty pre-packed weight cache.
func NewSharedCache() *SharedCache {
	return attention.NewSharedCache()
}

// WeightKey returns the shared-cache key for a weight tensor.
func WeightKey(t *RawTensor) string {
	return attention.WeightKey(t)
}

// DefaultPoolConfig returns the default worker configuration.
func DefaultPoolConfig() PoolConfig {
	return parallel.DefaultConfig()
}
