package tensor

import (
	"testing"
)

// RawTensor Tests

func TestNewRawZeroInitialized(t *testing.T) {
	raw, err := NewRaw(Shape{3, 2}, Float32)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	for i, v := range raw.AsFloat32() {
		if v != 0 {
			t.Errorf("element %d = %v, want 0", i, v)
		}
	}
}

func TestRawTensorAsFloat32(t *testing.T) {
	raw, _ := NewRaw(Shape{3, 2}, Float32)
	data := raw.AsFloat32()

	if len(data) != 6 {
		t.Errorf("AsFloat32 length = %d, want 6", len(data))
	}

	// Modify and verify zero-copy
	data[0] = 42
	if raw.AsFloat32()[0] != 42 {
		t.Error("AsFloat32 should return zero-copy slice")
	}
}

func TestRawTensorAsInt32(t *testing.T) {
	raw, _ := NewRaw(Shape{4}, Int32)
	data := raw.AsInt32()

	if len(data) != 4 {
		t.Errorf("AsInt32 length = %d, want 4", len(data))
	}

	data[3] = -7
	if raw.AsInt32()[3] != -7 {
		t.Error("AsInt32 should return zero-copy slice")
	}
}

func TestRawTensorAsFloat16(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float16)
	data := raw.AsFloat16()

	if len(data) != 4 {
		t.Errorf("AsFloat16 length = %d, want 4", len(data))
	}
	if raw.ByteSize() != 8 {
		t.Errorf("ByteSize = %d, want 8", raw.ByteSize())
	}
}

func TestRawTensorWrongDTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("AsInt32 on a float32 tensor should panic")
		}
	}()
	raw, _ := NewRaw(Shape{2}, Float32)
	raw.AsInt32()
}

func TestRawTensorData(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float32)
	if len(raw.Data()) != raw.ByteSize() {
		t.Errorf("Data length = %d, want %d", len(raw.Data()), raw.ByteSize())
	}
}

func TestNewRawInvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, -1}, Float32); err == nil {
		t.Error("NewRaw with negative dimension should fail")
	}
}
