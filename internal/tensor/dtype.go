package tensor

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types.
//
// Float16 is a storage-only type: weights may arrive in half precision
// and are widened to Float32 before any computation.
const (
	Float32 DataType = iota
	Float16
	Int32
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float16:
		return 2
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Int32:
		return "int32"
	default:
		return "unknown"
	}
}
