package database

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"

	_ "github.com/expki/go-imagesearch/env"
)

// VectorField stores a feature vector as zstd-compressed little-endian
// float32 bytes.
type VectorField []float32

// Scan scan value into VectorField, implements sql.Scanner interface
func (v *VectorField) Scan(value any) error {
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal VectorField value: %+v", value)
	}
	original, err := decompress(bytes)
	if err != nil {
		return fmt.Errorf("failed to decompress VectorField value: %+v", subSlice(bytes, 10))
	}
	if len(original)%4 != 0 {
		return fmt.Errorf("invalid VectorField payload length: %d", len(original))
	}
	out := make([]float32, len(original)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(original[i*4:]))
	}
	*v = VectorField(out)
	return nil
}

// Value return VectorField value, implement driver.Valuer interface
func (v VectorField) Value() (driver.Value, error) {
	raw := make([]byte, len(v)*4)
	for i, value := range v {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(value))
	}
	return compress(raw), nil
}

func (v VectorField) Underlying() []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

func subSlice[T any](list []T, max int) []T {
	if len(list) > max {
		return list[:max]
	}
	return list
}
