//go:build !gonum && !gorgonia
// +build !gonum,!gorgonia

package compute

import (
	"math"

	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/logger"
)

// CosineSimilarity computes the cosine similarity between the vector and
// every row of the matrix: dot product over the product of magnitudes. The
// containers are not mutated, so one matrix can serve concurrent readers.
func (vector *vectorContainer) CosineSimilarity(matrix Matrix) (similarity []float32) {
	realMatrix := matrix.(*matrixContainer)
	A := vector.data
	B := realMatrix.data
	AShape := vector.shape
	BShape := realMatrix.shape
	if AShape.cols != BShape.cols {
		logger.Sugar().Fatalf("vector/matrix column size does not match: %d != %d", AShape.cols, BShape.cols)
	}
	dim := AShape.cols
	n := BShape.rows

	normA := vectorNorm(A)

	sims := make([]float32, n)
	if normA == 0 {
		return sims
	}

	for i := 0; i < n; i++ {
		start := i * dim
		row := B[start : start+dim]

		var dot, sumSquares float64
		for j := 0; j < dim; j++ {
			dot += float64(A[j]) * float64(row[j])
			sumSquares += float64(row[j]) * float64(row[j])
		}
		normB := math.Sqrt(sumSquares)
		if normB == 0 {
			continue
		}
		sims[i] = float32(dot / (normA * normB))
	}

	return sims
}

// vectorNorm returns the L2 norm.
func vectorNorm(vec []float32) float64 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	return math.Sqrt(sumSquares)
}
