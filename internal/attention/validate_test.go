package attention

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fusedattn/internal/tensor"
)

func zeros(t *testing.T, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32)
	require.NoError(t, err)
	return raw
}

func zerosInt32(t *testing.T, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Int32)
	require.NoError(t, err)
	return raw
}

// mergedInputs builds a minimal valid merged-weights input set:
// batch=2, seq=3, hidden_in=8, num_heads=2, hidden_q=k=v=8.
func mergedInputs(t *testing.T) Inputs {
	t.Helper()
	return Inputs{
		Input:   zeros(t, tensor.Shape{2, 3, 8}),
		Weights: zeros(t, tensor.Shape{8, 24}),
		Bias:    zeros(t, tensor.Shape{24}),
	}
}

func TestCheckInputs_Merged(t *testing.T) {
	cfg := Config{NumHeads: 2, UseMergedWeights: true}

	p, err := cfg.CheckInputs(mergedInputs(t))
	require.NoError(t, err)

	assert.Equal(t, 2, p.BatchSize)
	assert.Equal(t, 3, p.SequenceLength)
	assert.Equal(t, 8, p.InputHiddenSize)
	assert.Equal(t, 8, p.HiddenQ)
	assert.Equal(t, 8, p.HiddenK)
	assert.Equal(t, 8, p.HiddenV)
	assert.Equal(t, 3, p.TargetSequenceLength)
	assert.Equal(t, 3, p.TotalSequenceLength)
	assert.Equal(t, 0, p.PastSequenceLength)
	assert.Equal(t, MaskNone, p.Mask.Kind)
	assert.Equal(t, 4, p.HeadSizeQ())
}

func TestCheckInputs_BiasSumMismatchNamesBias(t *testing.T) {
	cfg := Config{NumHeads: 2, UseMergedWeights: true, QKVHiddenSizes: []int{64, 64, 64}}

	in := Inputs{
		Input:   zeros(t, tensor.Shape{1, 2, 4}),
		Weights: zeros(t, tensor.Shape{4, 300}),
		Bias:    zeros(t, tensor.Shape{300}),
	}
	_, err := cfg.CheckInputs(in)
	require.Error(t, err)

	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "bias", ie.Operand)
}

func TestCheckInputs_QKVHiddenSizes(t *testing.T) {
	tests := []struct {
		name    string
		sizes   []int
		heads   int
		operand string
	}{
		{"not divisible by heads", []int{6, 6, 6}, 4, "qkv_hidden_sizes"},
		{"q differs from k", []int{8, 12, 12}, 4, "qkv_hidden_sizes"},
		{"wrong element count", []int{8, 8}, 4, "qkv_hidden_sizes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{NumHeads: tt.heads, UseMergedWeights: true, QKVHiddenSizes: tt.sizes}
			in := Inputs{
				Input:   zeros(t, tensor.Shape{1, 2, 8}),
				Weights: zeros(t, tensor.Shape{8, 24}),
				Bias:    zeros(t, tensor.Shape{24}),
			}
			_, err := cfg.CheckInputs(in)
			require.Error(t, err)

			var ie *InputError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, tt.operand, ie.Operand)
		})
	}
}

func TestCheckInputs_MergedWeightColumnMismatch(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		wcols int
		bias  int
	}{
		{
			name:  "default split",
			cfg:   Config{NumHeads: 2, UseMergedWeights: true},
			wcols: 9,
			bias:  12,
		},
		{
			name:  "explicit sizes",
			cfg:   Config{NumHeads: 2, UseMergedWeights: true, QKVHiddenSizes: []int{8, 8, 8}},
			wcols: 20,
			bias:  24,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Inputs{
				Input:   zeros(t, tensor.Shape{1, 2, 4}),
				Weights: zeros(t, tensor.Shape{4, tt.wcols}),
				Bias:    zeros(t, tensor.Shape{tt.bias}),
			}
			_, err := tt.cfg.CheckInputs(in)
			require.Error(t, err)

			var ie *InputError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, "weights", ie.Operand)
		})
	}
}

func TestCheckInputs_DefaultSplitNotDivisible(t *testing.T) {
	// bias length 9 splits into 3 per branch, which 2 heads cannot divide.
	cfg := Config{NumHeads: 2, UseMergedWeights: true}
	in := Inputs{
		Input:   zeros(t, tensor.Shape{1, 2, 4}),
		Weights: zeros(t, tensor.Shape{4, 9}),
		Bias:    zeros(t, tensor.Shape{9}),
	}
	_, err := cfg.CheckInputs(in)
	require.Error(t, err)

	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "bias", ie.Operand)
}

func TestCheckInputs_PastWithExtraAddQK(t *testing.T) {
	cfg := Config{NumHeads: 2, UseMergedWeights: true}
	in := mergedInputs(t)
	in.Past = zeros(t, tensor.Shape{2, 2, 2, 1, 4})
	in.ExtraAddQK = zeros(t, tensor.Shape{2, 2, 3, 3})

	_, err := cfg.CheckInputs(in)
	require.ErrorIs(t, err, errPastWithExtraAddQK)
}

func TestCheckInputs_Past(t *testing.T) {
	cfg := Config{NumHeads: 2, UseMergedWeights: true}

	in := mergedInputs(t)
	in.Past = zeros(t, tensor.Shape{2, 2, 2, 5, 4})
	p, err := cfg.CheckInputs(in)
	require.NoError(t, err)
	assert.Equal(t, 5, p.PastSequenceLength)
	assert.Equal(t, 8, p.TotalSequenceLength)

	bad := []struct {
		name  string
		shape tensor.Shape
	}{
		{"rank", tensor.Shape{2, 2, 2, 4}},
		{"leading dim", tensor.Shape{3, 2, 2, 5, 4}},
		{"batch", tensor.Shape{2, 3, 2, 5, 4}},
		{"heads", tensor.Shape{2, 2, 4, 5, 4}},
		{"head size", tensor.Shape{2, 2, 2, 5, 8}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			in := mergedInputs(t)
			in.Past = zeros(t, tt.shape)
			_, err := cfg.CheckInputs(in)
			require.Error(t, err)

			var ie *InputError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, "past", ie.Operand)
		})
	}
}

func TestCheckInputs_MaskVariants(t *testing.T) {
	cfg := Config{NumHeads: 2, UseMergedWeights: true}

	tests := []struct {
		name  string
		shape tensor.Shape
		kind  MaskKind
		ok    bool
	}{
		{"1D batch", tensor.Shape{2}, MaskPerBatch, true},
		{"1D double batch", tensor.Shape{4}, MaskPerBatchPair, true},
		{"1D wrong length", tensor.Shape{3}, 0, false},
		{"2D batch x total", tensor.Shape{2, 3}, MaskBatchTotal, true},
		{"2D broadcast batch x 1", tensor.Shape{2, 1}, MaskNone, true},
		{"2D broadcast 1 x 1", tensor.Shape{1, 1}, MaskNone, true},
		{"2D wrong total", tensor.Shape{2, 5}, 0, false},
		{"3D", tensor.Shape{2, 3, 3}, MaskBatchSeqTotal, true},
		{"3D wrong seq", tensor.Shape{2, 4, 3}, 0, false},
		{"4D square max", tensor.Shape{2, 1, 6, 6}, MaskSquareMax, true},
		{"4D not square", tensor.Shape{2, 1, 6, 5}, 0, false},
		{"4D max too small", tensor.Shape{2, 1, 2, 2}, 0, false},
		{"5D", tensor.Shape{2, 1, 1, 3, 3}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := mergedInputs(t)
			in.MaskIndex = zerosInt32(t, tt.shape)
			p, err := cfg.CheckInputs(in)
			if !tt.ok {
				require.Error(t, err)
				var ie *InputError
				require.True(t, errors.As(err, &ie))
				assert.Equal(t, "mask_index", ie.Operand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Mask.Kind)
			if tt.kind == MaskNone {
				assert.Nil(t, p.Mask.Index, "collapsed mask should be discarded")
			}
		})
	}
}

func TestCheckInputs_Rank4MaskRejectsCausal(t *testing.T) {
	cfg := Config{NumHeads: 2, UseMergedWeights: true, Unidirectional: true}
	in := mergedInputs(t)
	in.MaskIndex = zerosInt32(t, tensor.Shape{2, 1, 6, 6})

	_, err := cfg.CheckInputs(in)
	require.Error(t, err)

	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "mask_index", ie.Operand)
}

func TestCheckInputs_SeparateWeights(t *testing.T) {
	cfg := Config{NumHeads: 2}

	in := Inputs{
		Input:       zeros(t, tensor.Shape{2, 3, 8}),
		Weights:     zeros(t, tensor.Shape{8, 8}),
		Bias:        zeros(t, tensor.Shape{24}),
		Key:         zeros(t, tensor.Shape{2, 5, 8}),
		Value:       zeros(t, tensor.Shape{2, 5, 8}),
		WeightKey:   zeros(t, tensor.Shape{8, 8}),
		WeightValue: zeros(t, tensor.Shape{8, 8}),
	}
	p, err := cfg.CheckInputs(in)
	require.NoError(t, err)
	assert.Equal(t, 5, p.TargetSequenceLength)
	assert.Equal(t, 5, p.TotalSequenceLength)
	assert.Equal(t, 3, p.SequenceLength)

	t.Run("missing operands", func(t *testing.T) {
		in := in
		in.Key = nil
		_, err := cfg.CheckInputs(in)
		require.Error(t, err)

		var ie *InputError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, "key", ie.Operand)
	})

	t.Run("key value length mismatch", func(t *testing.T) {
		in := in
		in.Value = zeros(t, tensor.Shape{2, 4, 8})
		_, err := cfg.CheckInputs(in)
		require.Error(t, err)
	})
}

func TestCheckInputsBounded(t *testing.T) {
	cfg := Config{NumHeads: 8, UseMergedWeights: true}

	_, err := cfg.CheckInputsBounded(mergedInputs(t), 4)
	require.Error(t, err)

	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "num_heads", ie.Operand)

	cfg.NumHeads = 2
	_, err = cfg.CheckInputsBounded(mergedInputs(t), 4)
	require.NoError(t, err)
}

func TestCheckInputs_ExtraAddQK(t *testing.T) {
	cfg := Config{NumHeads: 2, UseMergedWeights: true}

	in := mergedInputs(t)
	in.ExtraAddQK = zeros(t, tensor.Shape{2, 2, 3, 3})
	_, err := cfg.CheckInputs(in)
	require.NoError(t, err)

	in.ExtraAddQK = zeros(t, tensor.Shape{2, 2, 3, 4})
	_, err = cfg.CheckInputs(in)
	require.Error(t, err)

	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "extra_add_qk", ie.Operand)
}
