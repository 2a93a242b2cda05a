package compute

import (
	_ "github.com/expki/go-imagesearch/env"
)

type shape struct {
	rows, cols int
}

type vectorContainer struct {
	data  []float32
	shape shape
}

type matrixContainer struct {
	data  []float32
	shape shape
}

// NewVector copies the embedding into a 1×dim container.
func NewVector(vector []float32) Vector {
	if len(vector) == 0 {
		panic("empty vector provided")
	}
	data := make([]float32, len(vector))
	copy(data, vector)
	return &vectorContainer{
		data:  data,
		shape: shape{rows: 1, cols: len(vector)},
	}
}

// NewMatrix copies the embeddings into one row-major container. All rows
// must share the same length.
func NewMatrix(matrix [][]float32) Matrix {
	if len(matrix) == 0 || len(matrix[0]) == 0 {
		panic("empty matrix provided")
	}
	cols := len(matrix[0])
	data := make([]float32, 0, len(matrix)*cols)
	for _, row := range matrix {
		if len(row) != cols {
			panic("matrix rows have inconsistent lengths")
		}
		data = append(data, row...)
	}
	return &matrixContainer{
		data:  data,
		shape: shape{rows: len(matrix), cols: cols},
	}
}

func (v *vectorContainer) Clone() Vector {
	data := make([]float32, len(v.data))
	copy(data, v.data)
	return &vectorContainer{data: data, shape: v.shape}
}

func (v *vectorContainer) Dim() int {
	return v.shape.cols
}

func (m *matrixContainer) Clone() Matrix {
	data := make([]float32, len(m.data))
	copy(data, m.data)
	return &matrixContainer{data: data, shape: m.shape}
}

func (m *matrixContainer) Rows() int {
	return m.shape.rows
}

func (m *matrixContainer) Dim() int {
	return m.shape.cols
}
