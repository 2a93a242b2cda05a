package config

import (
	"encoding/json"
	"testing"
)

func TestParseConfigAppliesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"database":{"sqlite":"app.db"}}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.Search.SimilarityThreshold != DEFAULT_SIMILARITY_THRESHOLD {
		t.Errorf("threshold = %v, want %v", cfg.Search.SimilarityThreshold, DEFAULT_SIMILARITY_THRESHOLD)
	}
	if cfg.Search.MaxResults != DEFAULT_MAX_RESULTS {
		t.Errorf("max results = %d, want %d", cfg.Search.MaxResults, DEFAULT_MAX_RESULTS)
	}
	if cfg.Extractor.Model != DEFAULT_EXTRACTION_MODEL {
		t.Errorf("model = %q, want %q", cfg.Extractor.Model, DEFAULT_EXTRACTION_MODEL)
	}
	if cfg.Extractor.VectorSize != DEFAULT_VECTOR_SIZE {
		t.Errorf("vector size = %d, want %d", cfg.Extractor.VectorSize, DEFAULT_VECTOR_SIZE)
	}
	if cfg.Database.Sqlite != "app.db" {
		t.Errorf("sqlite dsn = %q, want app.db", cfg.Database.Sqlite)
	}
}

func TestSearchWithDefaultsClamps(t *testing.T) {
	tests := []struct {
		name          string
		in            Search
		wantThreshold float64
		wantResults   int
	}{
		{"zero takes defaults", Search{}, DEFAULT_SIMILARITY_THRESHOLD, DEFAULT_MAX_RESULTS},
		{"above one clamps", Search{SimilarityThreshold: 1.5, MaxResults: 5}, 1, 5},
		{"below zero clamps", Search{SimilarityThreshold: -0.3, MaxResults: 5}, 0, 5},
		{"in range kept", Search{SimilarityThreshold: 0.42, MaxResults: 3}, 0.42, 3},
		{"negative cap falls back", Search{SimilarityThreshold: 0.5, MaxResults: -1}, 0.5, DEFAULT_MAX_RESULTS},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.WithDefaults()
			if got.SimilarityThreshold != tc.wantThreshold {
				t.Errorf("threshold = %v, want %v", got.SimilarityThreshold, tc.wantThreshold)
			}
			if got.MaxResults != tc.wantResults {
				t.Errorf("max results = %d, want %d", got.MaxResults, tc.wantResults)
			}
		})
	}
}

func TestSingleOrSlice(t *testing.T) {
	var single SingleOrSlice[string]
	if err := json.Unmarshal([]byte(`"one"`), &single); err != nil {
		t.Fatalf("unmarshal single: %v", err)
	}
	if len(single) != 1 || single[0] != "one" {
		t.Fatalf("single = %v, want [one]", single)
	}

	var slice SingleOrSlice[string]
	if err := json.Unmarshal([]byte(`["one","two"]`), &slice); err != nil {
		t.Fatalf("unmarshal slice: %v", err)
	}
	if len(slice) != 2 {
		t.Fatalf("slice = %v, want two entries", slice)
	}

	out, err := json.Marshal(single)
	if err != nil {
		t.Fatalf("marshal single: %v", err)
	}
	if string(out) != `"one"` {
		t.Errorf("single marshals to %s, want a bare value", out)
	}
}

func TestParseConfigRejectsBadJSON(t *testing.T) {
	if _, err := ParseConfig([]byte(`{"search":`)); err == nil {
		t.Fatal("expected a parse error")
	}
}
