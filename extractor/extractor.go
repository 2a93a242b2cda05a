// Package extractor produces fixed-length, L2-normalized feature vectors
// from image files. Vectors from the same implementation are unit length, so
// their dot product equals their cosine similarity.
package extractor

import (
	"context"
	"fmt"
	"time"

	_ "github.com/expki/go-imagesearch/env"
)

type Extractor interface {
	// Extract returns the feature vector for the image at path and the
	// elapsed extraction time. A decode or inference failure surfaces as an
	// *ExtractionError, never as a zero vector.
	Extract(ctx context.Context, path string) (vector []float32, elapsed time.Duration, err error)
	// ModelName identifies the backbone that produced the vectors.
	ModelName() string
	// Dimensions is the fixed output vector length.
	Dimensions() int
}

// ExtractionError reports a failed extraction for one file.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract features from %q: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
