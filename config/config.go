package config

import (
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/expki/go-imagesearch/env"
)

// Load reads and parses the JSON configuration file at path.
func Load(path string) (config Config, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config %q: %v", path, err)
	}
	return ParseConfig(raw)
}

// ParseConfig parses the raw JSON configuration.
func ParseConfig(raw []byte) (config Config, err error) {
	err = json.Unmarshal(raw, &config)
	if err != nil {
		return config, fmt.Errorf("unmarshal config: %v", err)
	}
	config.Search = config.Search.WithDefaults()
	config.Extractor = config.Extractor.WithDefaults()
	return config, nil
}

type Config struct {
	Server    ConfigServer `json:"server"`
	TLS       ConfigTLS    `json:"tls"`
	Database  Database     `json:"database"`
	Extractor Extractor    `json:"extractor"`
	Search    Search       `json:"search"`
	LogLevel  LogLevel     `json:"log_level"`
}

type ConfigServer struct {
	HttpAddress  string `json:"http_address"`
	HttpsAddress string `json:"https_address"`
	UploadDir    string `json:"upload_dir"`
}

// SingleOrSlice allows for a configuration field to be either a single value or a slice of values.
type SingleOrSlice[T any] []T

// UnmarshalJSON handles both single values and slices for the field.
func (s *SingleOrSlice[T]) UnmarshalJSON(data []byte) error {
	var single T
	if err := json.Unmarshal(data, &single); err == nil {
		*s = SingleOrSlice[T]{single}
		return nil
	}
	var slice []T
	if err := json.Unmarshal(data, &slice); err != nil {
		return err
	}
	*s = slice
	return nil
}

// MarshalJSON ensures that the field is marshaled correctly whether it's a single value or a slice.
func (s SingleOrSlice[T]) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]T(s))
}
