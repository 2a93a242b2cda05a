//go:build gonum
// +build gonum

package compute

import (
	_ "github.com/expki/go-imagesearch/env"
	"gonum.org/v1/gonum/blas/blas32"
)

// CosineSimilarity computes the cosine similarity between the vector and
// every row of the matrix using BLAS level-1 routines. The containers are
// not mutated, so one matrix can serve concurrent readers.
func (vector *vectorContainer) CosineSimilarity(matrix Matrix) (similarity []float32) {
	realMatrix := matrix.(*matrixContainer)
	A := vector.data
	B := realMatrix.data
	AShape := vector.shape
	BShape := realMatrix.shape
	if AShape.cols != BShape.cols {
		panic("matrix columns does not match")
	}
	dim := AShape.cols
	n := BShape.rows

	impl := blas32.Implementation()

	normA := impl.Snrm2(dim, A, 1)

	sims := make([]float32, n)
	if normA == 0 {
		return sims
	}

	for i := 0; i < n; i++ {
		row := B[i*dim:]
		normB := impl.Snrm2(dim, row, 1)
		if normB == 0 {
			continue
		}
		sims[i] = impl.Sdot(dim, row, 1, A, 1) / (normA * normB)
	}

	return sims
}
