package compute

// Vector is a single embedding laid out as a 1×dim row.
type Vector interface {
	Clone() Vector
	Dim() int
	// CosineSimilarity computes the cosine similarity between the vector and
	// every row of the matrix.
	CosineSimilarity(matrix Matrix) (similarity []float32)
}

// Matrix is a row-major batch of embeddings.
type Matrix interface {
	Clone() Matrix
	Rows() int
	Dim() int
}
