package config

const (
	BATCH_SIZE_DATABASE = 1_000
	BATCH_SIZE_EXTRACT  = 16

	DEFAULT_SIMILARITY_THRESHOLD = 0.7
	DEFAULT_MAX_RESULTS          = 20

	DEFAULT_EXTRACTION_MODEL = "resnet50"
	DEFAULT_VECTOR_SIZE      = 2048

	// ResNet backbone input geometry.
	EXTRACTOR_INPUT_SIZE = 224

	MAX_UPLOAD_SIZE = 50 << 20
)
