package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// FromFloat32 creates a Float32 tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	raw, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat32(), data)
	return raw, nil
}

// FromInt32 creates an Int32 tensor from a Go slice.
func FromInt32(data []int32, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	raw, err := NewRaw(shape, Int32)
	if err != nil {
		return nil, err
	}
	copy(raw.AsInt32(), data)
	return raw, nil
}

// FromFloat16Bits creates a Float16 tensor from raw half-precision bit
// patterns (e.g. as read from a model file).
func FromFloat16Bits(bits []uint16, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(bits) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(bits))
	}
	raw, err := NewRaw(shape, Float16)
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat16(), bits)
	return raw, nil
}

// WidenToFloat32 returns a Float32 view of t, converting Float16 storage
// element-wise. Float32 input is returned unchanged (no copy).
func WidenToFloat32(t *RawTensor) (*RawTensor, error) {
	switch t.DType() {
	case Float32:
		return t, nil
	case Float16:
		out, err := NewRaw(t.Shape(), Float32)
		if err != nil {
			return nil, err
		}
		src := t.AsFloat16()
		dst := out.AsFloat32()
		for i, bits := range src {
			dst[i] = float16.Frombits(bits).Float32()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot widen %s tensor to float32", t.DType())
	}
}
