//go:build gorgonia
// +build gorgonia

package compute

import (
	_ "github.com/expki/go-imagesearch/env"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// CosineSimilarity computes the cosine similarity between the vector and every
// row of the matrix with a single gorgonia graph.
func (vector *vectorContainer) CosineSimilarity(matrix Matrix) (similarity []float32) {
	realMatrix := matrix.(*matrixContainer)
	if vector.shape.cols != realMatrix.shape.cols {
		panic("matrix columns does not match")
	}
	g := gorgonia.NewGraph()

	vectorDense := tensor.New(
		tensor.WithBacking(append([]float32(nil), vector.data...)),
		tensor.WithShape(1, vector.shape.cols),
	)
	matrixDense := tensor.New(
		tensor.WithBacking(append([]float32(nil), realMatrix.data...)),
		tensor.WithShape(realMatrix.shape.rows, realMatrix.shape.cols),
	)

	// Input vector
	inputNode := gorgonia.NewTensor(g, tensor.Float32, 2, gorgonia.WithValue(vectorDense), gorgonia.WithName("node1"))

	// Batch matrix
	batchNode := gorgonia.NewTensor(g, tensor.Float32, 2, gorgonia.WithValue(matrixDense), gorgonia.WithName("node2"))

	// Compute norms
	inputSquared := gorgonia.Must(gorgonia.Square(inputNode))
	inputSumSquares := gorgonia.Must(gorgonia.Sum(inputSquared, 1))
	inputNorm := gorgonia.Must(gorgonia.Sqrt(inputSumSquares))

	batchSquared := gorgonia.Must(gorgonia.Square(batchNode))
	batchSumSquares := gorgonia.Must(gorgonia.Sum(batchSquared, 1))
	batchNorms := gorgonia.Must(gorgonia.Sqrt(batchSumSquares))

	// Matrix multiplication
	batchTransposed := gorgonia.Must(gorgonia.Transpose(batchNode, 1, 0))
	dotProduct := gorgonia.Must(gorgonia.BatchedMatMul(inputNode, batchTransposed))

	// Calculate denominator
	denominator := gorgonia.Must(gorgonia.OuterProd(inputNorm, batchNorms))

	// Compute cosine similarity
	cosineSim := gorgonia.Must(gorgonia.Div(dotProduct, denominator))

	// Execute the graph
	machine := gorgonia.NewTapeMachine(g)
	err := machine.RunAll()
	if err != nil {
		panic(err)
	}
	machine.Close()

	return cosineSim.Value().Data().([]float32)
}
