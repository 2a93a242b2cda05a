package compute

import (
	"math"
	"testing"
)

func TestCosineSimilaritySelf(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0.5, 0.5, 0.5, 0.5},
		{0.12, -0.7, 3.4, 0.001},
	}
	for _, vec := range vectors {
		sims := NewVector(vec).CosineSimilarity(NewMatrix([][]float32{vec}))
		if len(sims) != 1 {
			t.Fatalf("expected 1 similarity, got %d", len(sims))
		}
		if math.Abs(float64(sims[0])-1.0) > 1e-6 {
			t.Errorf("self similarity of %v = %v, want 1.0", vec, sims[0])
		}
	}
}

func TestCosineSimilarityKnownValues(t *testing.T) {
	target := NewVector([]float32{0, 1, 0, 0})
	matrix := NewMatrix([][]float32{
		{0.6, 0.8, 0, 0},   // cosine 0.8
		{0, 0.6, 0.8, 0},   // cosine 0.6
		{1, 0, 0, 0},       // orthogonal
		{0, -1, 0, 0},      // opposite
		{0, 2, 0, 0},       // same direction, not unit length
		{0, 0, 0, 0},       // zero vector
	})
	want := []float64{0.8, 0.6, 0, -1, 1, 0}
	sims := target.CosineSimilarity(matrix)
	if len(sims) != len(want) {
		t.Fatalf("expected %d similarities, got %d", len(want), len(sims))
	}
	for idx, expected := range want {
		if math.Abs(float64(sims[idx])-expected) > 1e-6 {
			t.Errorf("row %d similarity = %v, want %v", idx, sims[idx], expected)
		}
	}
}

func TestCosineSimilarityZeroQuery(t *testing.T) {
	sims := NewVector([]float32{0, 0, 0}).CosineSimilarity(NewMatrix([][]float32{{1, 2, 3}}))
	if sims[0] != 0 {
		t.Errorf("zero query similarity = %v, want 0", sims[0])
	}
}

func TestCosineSimilarityDoesNotMutate(t *testing.T) {
	rows := [][]float32{
		{3, 4, 0, 0},
		{0, 0, 5, 12},
	}
	matrix := NewMatrix(rows)
	target := NewVector([]float32{1, 1, 1, 1})

	first := target.CosineSimilarity(matrix)
	second := target.CosineSimilarity(matrix)
	for idx := range first {
		if first[idx] != second[idx] {
			t.Errorf("row %d similarity changed between calls: %v != %v", idx, first[idx], second[idx])
		}
	}
}

func TestNewVectorCopies(t *testing.T) {
	raw := []float32{1, 2, 3}
	vector := NewVector(raw)
	raw[0] = 99
	sims := vector.CosineSimilarity(NewMatrix([][]float32{{1, 2, 3}}))
	if math.Abs(float64(sims[0])-1.0) > 1e-6 {
		t.Errorf("vector container shares memory with caller slice: similarity = %v", sims[0])
	}
}

func TestNewMatrixPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for empty matrix")
		}
	}()
	NewMatrix(nil)
}
