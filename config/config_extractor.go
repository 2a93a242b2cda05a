package config

import (
	_ "github.com/expki/go-imagesearch/env"
)

type Extractor struct {
	// Model is the backbone identifier recorded on every embedding row.
	Model string `json:"model"`
	// ModelPath points at the ONNX export of the backbone with its
	// classification head removed.
	ModelPath string `json:"model_path"`
	// LibraryPath points at the onnxruntime shared library.
	LibraryPath string `json:"library_path"`
	// VectorSize is the output dimensionality of the model.
	VectorSize int `json:"vector_size"`
}

func (c Extractor) WithDefaults() Extractor {
	if c.Model == "" {
		c.Model = DEFAULT_EXTRACTION_MODEL
	}
	if c.VectorSize < 1 {
		c.VectorSize = DEFAULT_VECTOR_SIZE
	}
	return c
}
