// Package gemm provides the single-precision matrix-multiply routines
// behind the attention projection: a general strided GEMM backed by
// gonum BLAS, and a pre-packed fast path for weight matrices that are
// multiplied many times with the same right-hand side.
package gemm

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Gemm computes C = alpha*op(A)*op(B) + beta*C for row-major matrices.
//
// op(A) is m x k, op(B) is k x n and C is m x n; lda/ldb/ldc are the
// row strides of the underlying storage, which lets a multiply address a
// column block inside a wider matrix (e.g. one head's slice of a merged
// Q/K/V weight).
func Gemm(transA, transB bool, m, n, k int, alpha float32, a []float32, lda int, b []float32, ldb int, beta float32, c []float32, ldc int) {
	ta, tb := blas.NoTrans, blas.NoTrans
	if transA {
		ta = blas.Trans
	}
	if transB {
		tb = blas.Trans
	}
	blas32.Implementation().Sgemm(ta, tb, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc)
}
