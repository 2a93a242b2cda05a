package extractor

import (
	"context"
	"errors"
	"sync"
	"time"

	_ "github.com/expki/go-imagesearch/env"
)

// Static serves pre-registered vectors keyed by file path. Used by tests and
// offline tooling in place of a real model.
type Static struct {
	mu       sync.RWMutex
	vectors  map[string][]float32
	fallback []float32
	model    string
	dims     int
}

func NewStatic(model string, dims int) *Static {
	return &Static{
		vectors: make(map[string][]float32),
		model:   model,
		dims:    dims,
	}
}

// Register associates a vector with a path. The vector is served as-is, so
// callers wanting unit vectors must normalize beforehand.
func (s *Static) Register(path string, vector []float32) {
	s.mu.Lock()
	s.vectors[path] = vector
	s.mu.Unlock()
}

// RegisterFallback sets the vector served for paths without a registered
// vector of their own.
func (s *Static) RegisterFallback(vector []float32) {
	s.mu.Lock()
	s.fallback = vector
	s.mu.Unlock()
}

func (s *Static) Extract(ctx context.Context, path string) (vector []float32, elapsed time.Duration, err error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	vector, ok := s.vectors[path]
	if !ok {
		vector, ok = s.fallback, s.fallback != nil
	}
	s.mu.RUnlock()
	if !ok {
		return nil, 0, &ExtractionError{Path: path, Err: errors.New("no vector registered")}
	}
	out := make([]float32, len(vector))
	copy(out, vector)
	return out, time.Microsecond, nil
}

func (s *Static) ModelName() string {
	return s.model
}

func (s *Static) Dimensions() int {
	return s.dims
}
