package attention

import "github.com/born-ml/fusedattn/internal/tensor"

// CheckInputs validates every operand combination the operator accepts
// and resolves it into one normalized Params record. It never mutates
// its operands, with one deliberate exception: a rank-2 mask of shape
// [batch, 1] or [1, 1] broadcasts to a constant and is normalized to
// "no mask" rather than rejected — callers depend on this.
func (cfg Config) CheckInputs(in Inputs) (Params, error) {
	var wshape tensor.Shape
	if in.Weights != nil {
		wshape = in.Weights.Shape()
	}
	return cfg.checkInputs(in, wshape)
}

// CheckInputsBounded additionally bounds NumHeads by a caller-supplied
// ceiling (a hardware dispatch width, where one applies) and then runs
// the full check with the separate-weights operands absent.
func (cfg Config) CheckInputsBounded(in Inputs, maxHeads int) (Params, error) {
	if cfg.NumHeads > maxHeads {
		return Params{}, inputErrf("num_heads", "should be no larger than %d, got %d", maxHeads, cfg.NumHeads)
	}
	in.Key, in.Value, in.WeightKey, in.WeightValue = nil, nil, nil, nil
	return cfg.CheckInputs(in)
}

// checkInputs is the full validator. weightsShape is passed separately
// because a pre-packed operator no longer holds the raw weight tensor,
// only its shape.
func (cfg Config) checkInputs(in Inputs, weightsShape tensor.Shape) (Params, error) {
	if cfg.NumHeads < 1 {
		return Params{}, inputErrf("num_heads", "must be at least 1, got %d", cfg.NumHeads)
	}

	if in.Past != nil && in.ExtraAddQK != nil {
		return Params{}, errPastWithExtraAddQK
	}

	if in.Input == nil {
		return Params{}, inputErrf("input", "is required")
	}
	dims := in.Input.Shape()
	if len(dims) != 3 {
		return Params{}, inputErrf("input", "is expected to have 3 dimensions, got %d", len(dims))
	}
	if in.Input.DType() != tensor.Float32 {
		return Params{}, inputErrf("input", "is expected to be float32, got %s", in.Input.DType())
	}
	batchSize, sequenceLength, inputHiddenSize := dims[0], dims[1], dims[2]

	if len(weightsShape) != 2 {
		return Params{}, inputErrf("weights", "is expected to have 2 dimensions, got %d", len(weightsShape))
	}
	if weightsShape[0] != inputHiddenSize {
		return Params{}, inputErrf("weights", "dimension 0 should have same length as dimension 2 of input 'input'")
	}

	if in.Bias == nil {
		return Params{}, inputErrf("bias", "is required")
	}
	biasDims := in.Bias.Shape()
	if len(biasDims) != 1 {
		return Params{}, inputErrf("bias", "is expected to have 1 dimension, got %d", len(biasDims))
	}
	if in.Bias.DType() != tensor.Float32 {
		return Params{}, inputErrf("bias", "is expected to be float32, got %s", in.Bias.DType())
	}

	// Resolve the per-branch hidden sizes: separate weight matrices win,
	// then an explicit size list, then an equal three-way bias split.
	targetSequenceLength := sequenceLength
	hiddenQ := biasDims[0] / 3
	hiddenK := hiddenQ
	hiddenV := hiddenQ
	// sizeOperand names the operand a bad resolved size is blamed on.
	sizeOperand := "bias"

	if !cfg.UseMergedWeights {
		if in.Key == nil || in.Value == nil || in.WeightKey == nil || in.WeightValue == nil {
			return Params{}, inputErrf("key", "when merged weights are disabled, 'key', 'value', 'weight_key' and 'weight_value' are required")
		}

		keyDims := in.Key.Shape()
		if len(keyDims) != 3 {
			return Params{}, inputErrf("key", "is expected to have 3 dimensions, got %d", len(keyDims))
		}
		if keyDims[0] != batchSize {
			return Params{}, inputErrf("key", "dimension 0 should have same length as dimension 0 of input 'input'")
		}
		if keyDims[2] != inputHiddenSize {
			return Params{}, inputErrf("key", "dimension 2 should have same length as dimension 2 of input 'input'")
		}

		valueDims := in.Value.Shape()
		if len(valueDims) != 3 {
			return Params{}, inputErrf("value", "is expected to have 3 dimensions, got %d", len(valueDims))
		}
		if valueDims[0] != batchSize {
			return Params{}, inputErrf("value", "dimension 0 should have same length as dimension 0 of input 'input'")
		}
		if valueDims[1] != keyDims[1] {
			return Params{}, inputErrf("value", "dimension 1 should have same length as dimension 1 of input 'key'")
		}
		if valueDims[2] != inputHiddenSize {
			return Params{}, inputErrf("value", "dimension 2 should have same length as dimension 2 of input 'input'")
		}

		weightKeyDims := in.WeightKey.Shape()
		if len(weightKeyDims) != 2 {
			return Params{}, inputErrf("weight_key", "is expected to have 2 dimensions, got %d", len(weightKeyDims))
		}
		if weightKeyDims[0] != inputHiddenSize {
			return Params{}, inputErrf("weight_key", "dimension 0 should have same length as dimension 2 of input 'input'")
		}

		weightValueDims := in.WeightValue.Shape()
		if len(weightValueDims) != 2 {
			return Params{}, inputErrf("weight_value", "is expected to have 2 dimensions, got %d", len(weightValueDims))
		}
		if weightValueDims[0] != inputHiddenSize {
			return Params{}, inputErrf("weight_value", "dimension 0 should have same length as dimension 2 of input 'input'")
		}

		hiddenQ = weightsShape[1]
		hiddenK = weightKeyDims[1]
		hiddenV = weightValueDims[1]
		targetSequenceLength = keyDims[1]
		sizeOperand = "weights"

		if hiddenQ != hiddenK {
			return Params{}, inputErrf("weight_key", "dimension 1 should match dimension 1 of input 'weights'")
		}
	} else if len(cfg.QKVHiddenSizes) != 0 {
		if len(cfg.QKVHiddenSizes) != 3 {
			return Params{}, inputErrf("qkv_hidden_sizes", "attribute should have 3 elements, got %d", len(cfg.QKVHiddenSizes))
		}
		hiddenQ = cfg.QKVHiddenSizes[0]
		hiddenK = cfg.QKVHiddenSizes[1]
		hiddenV = cfg.QKVHiddenSizes[2]
		sizeOperand = "qkv_hidden_sizes"

		if hiddenQ != hiddenK {
			return Params{}, inputErrf("qkv_hidden_sizes", "first element should be same as the second")
		}
	}

	for _, h := range []int{hiddenQ, hiddenK, hiddenV} {
		if h <= 0 || h%cfg.NumHeads != 0 {
			return Params{}, inputErrf(sizeOperand, "resolved hidden size %d should be positive and divisible by num_heads %d", h, cfg.NumHeads)
		}
	}

	if biasDims[0] != hiddenQ+hiddenK+hiddenV {
		return Params{}, inputErrf("bias", "dimension 0 should have same length as sum of Q/K/V hidden sizes %d, got %d",
			hiddenQ+hiddenK+hiddenV, biasDims[0])
	}
	if cfg.UseMergedWeights && weightsShape[1] != hiddenQ+hiddenK+hiddenV {
		return Params{}, inputErrf("weights", "dimension 1 should have same length as sum of Q/K/V hidden sizes %d, got %d",
			hiddenQ+hiddenK+hiddenV, weightsShape[1])
	}

	pastSequenceLength := 0
	totalSequenceLength := targetSequenceLength

	if in.Past != nil {
		if hiddenK != hiddenV {
			return Params{}, inputErrf("past", "expects hidden sizes of K and V to be equal, got %d and %d", hiddenK, hiddenV)
		}
		pastDims := in.Past.Shape()
		if len(pastDims) != 5 {
			return Params{}, inputErrf("past", "is expected to have 5 dimensions, got %d", len(pastDims))
		}
		if pastDims[0] != 2 {
			return Params{}, inputErrf("past", "dimension 0 shall have length of 2")
		}
		if pastDims[1] != batchSize {
			return Params{}, inputErrf("past", "dimension 1 shall have same length as dimension 0 of input 'input'")
		}
		if pastDims[2] != cfg.NumHeads {
			return Params{}, inputErrf("past", "dimension 2 shall have length of num_heads %d", cfg.NumHeads)
		}
		if pastDims[4] != hiddenK/cfg.NumHeads {
			return Params{}, inputErrf("past", "dimension 4 shall have length of %d", hiddenK/cfg.NumHeads)
		}
		pastSequenceLength = pastDims[3]
		totalSequenceLength += pastSequenceLength
	}

	mask := Mask{Kind: MaskNone}
	if in.MaskIndex != nil {
		if in.MaskIndex.DType() != tensor.Int32 {
			return Params{}, inputErrf("mask_index", "is expected to be int32, got %s", in.MaskIndex.DType())
		}
		maskDims := in.MaskIndex.Shape()
		switch len(maskDims) {
		case 1:
			switch maskDims[0] {
			case batchSize:
				mask = Mask{Kind: MaskPerBatch, Index: in.MaskIndex}
			case 2 * batchSize:
				mask = Mask{Kind: MaskPerBatchPair, Index: in.MaskIndex}
			default:
				return Params{}, inputErrf("mask_index", "with 1D data shall have length of batch_size or 2 * batch_size")
			}
		case 2:
			if maskDims[0] == batchSize && maskDims[1] == totalSequenceLength {
				mask = Mask{Kind: MaskBatchTotal, Index: in.MaskIndex}
			} else if (maskDims[0] == batchSize || maskDims[0] == 1) && maskDims[1] == 1 {
				// Broadcast collapse: every position gets the same value,
				// which has the same effect as no mask. Discard it.
				mask = Mask{Kind: MaskNone}
			} else {
				return Params{}, inputErrf("mask_index", "with 2D data shall have shape batch_size x total_sequence_length")
			}
		case 3:
			if maskDims[0] != batchSize || maskDims[1] != sequenceLength || maskDims[2] != totalSequenceLength {
				return Params{}, inputErrf("mask_index", "with 3D data shall have shape batch_size x sequence_length x total_sequence_length")
			}
			mask = Mask{Kind: MaskBatchSeqTotal, Index: in.MaskIndex}
		case 4:
			if maskDims[0] != batchSize || maskDims[1] != 1 || maskDims[2] != maskDims[3] ||
				maskDims[2] < totalSequenceLength {
				return Params{}, inputErrf("mask_index", "with 4D data shall have shape batch_size x 1 x max_sequence_length x max_sequence_length")
			}
			if cfg.Unidirectional {
				return Params{}, inputErrf("mask_index", "with 4D data requires the unidirectional attribute to be disabled")
			}
			mask = Mask{Kind: MaskSquareMax, Index: in.MaskIndex}
		default:
			return Params{}, inputErrf("mask_index", "is expected to have 1, 2, 3 or 4 dimensions, got %d", len(maskDims))
		}
	}

	if in.ExtraAddQK != nil {
		extraDims := in.ExtraAddQK.Shape()
		if len(extraDims) != 4 {
			return Params{}, inputErrf("extra_add_qk", "is expected to have 4 dimensions, got %d", len(extraDims))
		}
		if extraDims[0] != batchSize {
			return Params{}, inputErrf("extra_add_qk", "dimension 0 should be same as batch_size, got %d", extraDims[0])
		}
		if extraDims[1] != cfg.NumHeads {
			return Params{}, inputErrf("extra_add_qk", "dimension 1 should be same as number of heads, got %d", extraDims[1])
		}
		if extraDims[2] != sequenceLength {
			return Params{}, inputErrf("extra_add_qk", "dimension 2 should be same as sequence_length, got %d", extraDims[2])
		}
		if extraDims[3] != sequenceLength {
			return Params{}, inputErrf("extra_add_qk", "dimension 3 should be same as sequence_length, got %d", extraDims[3])
		}
		if targetSequenceLength != sequenceLength {
			return Params{}, inputErrf("extra_add_qk", "requires key sequence length %d to equal sequence_length %d", targetSequenceLength, sequenceLength)
		}
	}

	return Params{
		BatchSize:            batchSize,
		SequenceLength:       sequenceLength,
		InputHiddenSize:      inputHiddenSize,
		HiddenQ:              hiddenQ,
		HiddenK:              hiddenK,
		HiddenV:              hiddenV,
		NumHeads:             cfg.NumHeads,
		TargetSequenceLength: targetSequenceLength,
		PastSequenceLength:   pastSequenceLength,
		TotalSequenceLength:  totalSequenceLength,
		Mask:                 mask,
	}, nil
}
