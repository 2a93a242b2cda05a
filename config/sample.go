package config

import (
	"encoding/json"
	"errors"
	"os"

	_ "github.com/expki/go-imagesearch/env"
)

// CreateSample creates a sample configuration file.
func CreateSample(path string) error {
	sample := Config{
		Server: ConfigServer{
			HttpAddress:  ":7600",
			HttpsAddress: ":7601",
			UploadDir:    "./uploads",
		},
		TLS: ConfigTLS{
			DomainNameServer: []string{},
			Certificates:     []*ConfigTLSPath{},
		},
		Database: Database{
			Sqlite:   "./imagesearch.db",
			LogLevel: LogLevelError,
		},
		Extractor: Extractor{
			Model:       DEFAULT_EXTRACTION_MODEL,
			ModelPath:   "./models/resnet50.onnx",
			LibraryPath: "./models/libonnxruntime.so",
			VectorSize:  DEFAULT_VECTOR_SIZE,
		},
		Search: Search{
			SimilarityThreshold: DEFAULT_SIMILARITY_THRESHOLD,
			MaxResults:          DEFAULT_MAX_RESULTS,
		},
		LogLevel: LogLevelInfo,
	}
	raw, err := json.MarshalIndent(sample, "", "    ")
	if err != nil {
		return errors.Join(errors.New("could not marshal sample config"), err)
	}
	err = os.WriteFile(path, raw, 0600)
	if err != nil {
		return errors.Join(errors.New("could not write sample config file"), err)
	}
	return nil
}
