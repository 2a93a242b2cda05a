// Package ingest brings image files into the store: metadata extraction,
// content-hash dedup, file placement and feature extraction.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/expki/go-imagesearch/database"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/extractor"
	"github.com/expki/go-imagesearch/logger"
	"github.com/google/uuid"
)

// ErrUnsupportedFormat is returned for files outside the jpg/jpeg/png
// allow-list.
var ErrUnsupportedFormat = errors.New("unsupported image format")

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

type Ingestor struct {
	db        *database.Database
	extractor extractor.Extractor
	uploadDir string
}

func New(db *database.Database, ex extractor.Extractor, uploadDir string) *Ingestor {
	os.MkdirAll(uploadDir, 0o755)
	return &Ingestor{
		db:        db,
		extractor: ex,
		uploadDir: uploadDir,
	}
}

// IngestFile ingests an image already on disk, such as a seed image.
func (i *Ingestor) IngestFile(ctx context.Context, path, title string, seed bool) (database.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return database.Image{}, fmt.Errorf("read image file: %w", err)
	}
	return i.IngestBytes(ctx, data, filepath.Base(path), title, seed)
}

// IngestBytes validates, stores and records one image. The stored file gets
// a generated name; the original filename is kept as metadata. The image row
// is created unextracted; ExtractAndStore computes its embedding.
func (i *Ingestor) IngestBytes(ctx context.Context, data []byte, filename, title string, seed bool) (database.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return database.Image{}, ErrUnsupportedFormat
	}

	// decode upfront so corrupt files are rejected before anything persists
	decoded, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return database.Image{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := decoded.Bounds()

	hash := sha256.Sum256(data)

	stored := filepath.Join(i.uploadDir, uuid.NewString()+ext)
	if err := os.WriteFile(stored, data, 0o644); err != nil {
		return database.Image{}, fmt.Errorf("store image file: %w", err)
	}

	image := database.Image{
		Title:            title,
		FilePath:         stored,
		OriginalFilename: filename,
		FileSize:         int64(len(data)),
		Width:            bounds.Dx(),
		Height:           bounds.Dy(),
		Hash:             hex.EncodeToString(hash[:]),
		IsSeed:           seed,
	}
	if err := i.db.CreateImage(ctx, &image); err != nil {
		os.Remove(stored)
		return database.Image{}, err
	}
	return image, nil
}

// ExtractAndStore runs the extractor on the image's file and records the
// embedding. Failures are recorded on the image row and returned.
func (i *Ingestor) ExtractAndStore(ctx context.Context, image database.Image) error {
	vector, elapsed, err := i.extractor.Extract(ctx, image.FilePath)
	if err != nil {
		if ctx.Err() == nil {
			if markErr := i.db.MarkImageFailed(ctx, image.ID, err.Error()); markErr != nil {
				logger.Sugar().Errorf("recording extraction failure for image %d failed: %v", image.ID, markErr)
			}
		}
		return err
	}
	if len(vector) != i.extractor.Dimensions() {
		err = fmt.Errorf("extractor returned %d components, model %q declares %d", len(vector), i.extractor.ModelName(), i.extractor.Dimensions())
		if markErr := i.db.MarkImageFailed(ctx, image.ID, err.Error()); markErr != nil {
			logger.Sugar().Errorf("recording extraction failure for image %d failed: %v", image.ID, markErr)
		}
		return err
	}
	return i.db.SaveEmbedding(ctx, image.ID, vector, i.extractor.ModelName(), elapsed)
}

// Discard removes an image row and its stored file, used to clean up after
// a failed upload-then-search flow.
func (i *Ingestor) Discard(ctx context.Context, image database.Image) {
	if err := i.db.DeleteImage(ctx, image.ID); err != nil {
		logger.Sugar().Errorf("deleting image %d failed: %v", image.ID, err)
	}
	if image.FilePath != "" {
		if err := os.Remove(image.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Sugar().Warnf("removing stored file %q failed: %v", image.FilePath, err)
		}
	}
}
