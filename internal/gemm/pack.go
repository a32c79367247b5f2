package gemm

import "unsafe"

// panelWidth is the column width of one packed micro-panel. The packed
// layout is [ceil(n/panelWidth), k, panelWidth]: within a panel the k
// values of its columns are interleaved so the inner kernel loop reads
// packed memory sequentially.
const panelWidth = 8

// PackBSize returns the buffer size in bytes needed to pack an n-column,
// k-row right-hand-side matrix, or 0 when the dimensions cannot be
// packed. A zero return tells the caller to stay on the unpacked path.
func PackBSize(n, k int) int {
	if n <= 0 || k <= 0 {
		return 0
	}
	panels := (n + panelWidth - 1) / panelWidth
	return panels * k * panelWidth * 4
}

// PackB packs the k x n matrix b (row stride ldb) into packed, which
// must hold at least PackBSize(n, k) bytes. Tail panel lanes beyond n
// are written as zeros, so packing identical matrices always produces
// byte-identical buffers.
func PackB(n, k int, b []float32, ldb int, packed []byte) {
	size := PackBSize(n, k)
	if size == 0 || len(packed) < size {
		panic("gemm: packed buffer too small")
	}

	dst := f32s(packed)
	panels := (n + panelWidth - 1) / panelWidth
	idx := 0
	for p := 0; p < panels; p++ {
		col := p * panelWidth
		lanes := min(panelWidth, n-col)
		for kk := 0; kk < k; kk++ {
			row := b[kk*ldb+col:]
			for r := 0; r < lanes; r++ {
				dst[idx] = row[r]
				idx++
			}
			for r := lanes; r < panelWidth; r++ {
				dst[idx] = 0
				idx++
			}
		}
	}
}

// GemmPacked computes C = alpha*A*B + beta*C where B was prepared with
// PackB. A is m x k (row stride lda), C is m x n (row stride ldc).
// Always single-threaded: callers parallelize across independent
// multiplies, not inside one.
func GemmPacked(m, n, k int, alpha float32, a []float32, lda int, packed []byte, beta float32, c []float32, ldc int) {
	pb := f32s(packed)
	panels := (n + panelWidth - 1) / panelWidth

	var acc [panelWidth]float32
	for p := 0; p < panels; p++ {
		base := p * k * panelWidth
		col := p * panelWidth
		lanes := min(panelWidth, n-col)

		for i := 0; i < m; i++ {
			arow := a[i*lda : i*lda+k]
			for r := range acc {
				acc[r] = 0
			}
			for kk := 0; kk < k; kk++ {
				av := arow[kk]
				panel := pb[base+kk*panelWidth:]
				for r := 0; r < panelWidth; r++ {
					acc[r] += av * panel[r]
				}
			}
			crow := c[i*ldc+col:]
			if beta == 0 {
				for r := 0; r < lanes; r++ {
					crow[r] = alpha * acc[r]
				}
			} else {
				for r := 0; r < lanes; r++ {
					crow[r] = beta*crow[r] + alpha*acc[r]
				}
			}
		}
	}
}

// f32s reinterprets a byte buffer as float32 storage.
func f32s(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	//nolint:gosec // zero-copy view over an allocator-provided buffer
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
