package config

import (
	_ "github.com/expki/go-imagesearch/env"
)

type Search struct {
	// SimilarityThreshold is the minimum cosine similarity a candidate must
	// reach to be returned. Clamped to [0, 1].
	SimilarityThreshold float64 `json:"similarity_threshold"`
	// MaxResults caps the number of hits returned per search.
	MaxResults int `json:"max_results"`
}

func (c Search) WithDefaults() Search {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = DEFAULT_SIMILARITY_THRESHOLD
	}
	if c.SimilarityThreshold < 0 {
		c.SimilarityThreshold = 0
	} else if c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = 1
	}
	if c.MaxResults < 1 {
		c.MaxResults = DEFAULT_MAX_RESULTS
	}
	return c
}
