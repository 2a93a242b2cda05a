package database

import (
	"time"

	_ "github.com/expki/go-imagesearch/env"
	"gorm.io/gorm"
)

// Image is one stored picture, either a seed/reference image or an upload.
type Image struct {
	ID               uint64 `gorm:"primarykey"`
	Title            string
	FilePath         string `gorm:"not null"`
	OriginalFilename string
	FileSize         int64
	Width            int
	Height           int
	Hash             string `gorm:"uniqueIndex;not null"`
	IsSeed           bool   `gorm:"index;not null"`

	// FeaturesExtracted marks the image as part of the searchable corpus.
	FeaturesExtracted bool `gorm:"index;not null"`
	ProcessingError   string

	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime;index;not null"`

	Embedding *Embedding `gorm:"constraint:OnDelete:CASCADE"`
}

func (m *Image) BeforeCreate(tx *gorm.DB) error {
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Image) BeforeUpdate(tx *gorm.DB) error {
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// Embedding is the feature vector of exactly one image.
type Embedding struct {
	ID      uint64 `gorm:"primarykey"`
	ImageID uint64 `gorm:"uniqueIndex;not null"`

	Vector     VectorField `gorm:"not null"`
	Model      string      `gorm:"index;not null"`
	VectorSize int         `gorm:"not null"`

	// ExtractionTime is the forward-pass duration in seconds.
	ExtractionTime float64
	CreatedAt      time.Time `gorm:"index"`
}

// SearchQuery is an append-only audit record of one search invocation.
type SearchQuery struct {
	ID           uint64 `gorm:"primarykey"`
	QueryImageID uint64 `gorm:"index;not null"`
	QueryImage   Image  `gorm:"constraint:OnDelete:CASCADE"`
	UserID       *uint64

	SimilarityThreshold float64 `gorm:"not null"`
	MaxResults          int     `gorm:"not null"`

	ResultsCount int `gorm:"not null"`
	// SearchTime is the whole operation's wall-clock duration in seconds.
	SearchTime float64

	CreatedAt time.Time `gorm:"index"`
}

// SimilarityResult is one ranked hit belonging to a search query. Ranks form
// a dense 1-based sequence ordered by descending score.
type SimilarityResult struct {
	ID            uint64 `gorm:"primarykey"`
	SearchQueryID uint64 `gorm:"not null;uniqueIndex:idx_result_query_image"`
	ImageID       uint64 `gorm:"not null;uniqueIndex:idx_result_query_image"`
	Image         Image  `gorm:"constraint:OnDelete:CASCADE"`

	Score float64 `gorm:"index;not null"`
	Rank  int     `gorm:"index;not null"`

	CreatedAt time.Time
}
