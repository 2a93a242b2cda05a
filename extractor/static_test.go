package extractor

import (
	"context"
	"errors"
	"testing"
)

func TestStaticServesRegisteredVectors(t *testing.T) {
	static := NewStatic("stub", 4)
	static.Register("images/cat.jpg", []float32{0, 1, 0, 0})

	vector, elapsed, err := static.Extract(context.Background(), "images/cat.jpg")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(vector) != 4 || vector[1] != 1 {
		t.Fatalf("vector = %v, want [0 1 0 0]", vector)
	}
	if elapsed <= 0 {
		t.Errorf("elapsed = %v, want positive", elapsed)
	}

	// callers may mutate their copy without affecting later extractions
	vector[1] = 99
	again, _, err := static.Extract(context.Background(), "images/cat.jpg")
	if err != nil {
		t.Fatalf("second extract failed: %v", err)
	}
	if again[1] != 1 {
		t.Errorf("registered vector mutated through a returned copy: %v", again)
	}
}

func TestStaticUnregisteredPath(t *testing.T) {
	static := NewStatic("stub", 4)
	_, _, err := static.Extract(context.Background(), "images/unknown.jpg")
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("error = %v, want *ExtractionError", err)
	}
	if extractionErr.Path != "images/unknown.jpg" {
		t.Errorf("error path = %q, want the requested path", extractionErr.Path)
	}
}

func TestStaticCancelledContext(t *testing.T) {
	static := NewStatic("stub", 4)
	static.Register("images/cat.jpg", []float32{0, 1, 0, 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := static.Extract(ctx, "images/cat.jpg"); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestStaticMetadata(t *testing.T) {
	static := NewStatic("resnet50", 2048)
	if static.ModelName() != "resnet50" {
		t.Errorf("model name = %q, want resnet50", static.ModelName())
	}
	if static.Dimensions() != 2048 {
		t.Errorf("dimensions = %d, want 2048", static.Dimensions())
	}
}
