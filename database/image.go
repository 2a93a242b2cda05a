package database

import (
	"context"
	"errors"
	"time"

	"github.com/expki/go-imagesearch/config"
	_ "github.com/expki/go-imagesearch/env"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"
)

// ErrDuplicateImage is returned when an image with the same content hash is
// already stored.
var ErrDuplicateImage = errors.New("image with identical content already exists")

// CreateImage stores a new image row, rejecting content-hash duplicates.
func (db *Database) CreateImage(ctx context.Context, image *Image) error {
	var existing Image
	result := db.Clauses(dbresolver.Write).WithContext(ctx).Where("hash = ?", image.Hash).Take(&existing)
	if result.Error == nil {
		return ErrDuplicateImage
	} else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return errors.Join(errors.New("failed to check image hash"), result.Error)
	}
	result = db.Clauses(dbresolver.Write).WithContext(ctx).Create(image)
	if result.Error != nil {
		return errors.Join(errors.New("failed to create image"), result.Error)
	}
	return nil
}

// ImageByID fetches one image with its embedding preloaded.
func (db *Database) ImageByID(ctx context.Context, id uint64) (image Image, err error) {
	result := db.Clauses(dbresolver.Read).WithContext(ctx).Preload("Embedding").Take(&image, id)
	if result.Error != nil {
		return image, result.Error
	}
	return image, nil
}

// ImageByHash fetches one image by its content hash.
func (db *Database) ImageByHash(ctx context.Context, hash string) (image Image, err error) {
	result := db.Clauses(dbresolver.Read).WithContext(ctx).Where("hash = ?", hash).Take(&image)
	if result.Error != nil {
		return image, result.Error
	}
	return image, nil
}

// CountCandidates returns the size of the candidate pool for a query image:
// every extracted image except the query itself.
func (db *Database) CountCandidates(ctx context.Context, excludeID uint64) (total int64, err error) {
	result := db.Clauses(dbresolver.Read).WithContext(ctx).
		Model(&Image{}).
		Where("features_extracted = ? AND id <> ?", true, excludeID).
		Count(&total)
	if result.Error != nil {
		return 0, result.Error
	}
	return total, nil
}

// CandidateImages streams the candidate pool in batches, embeddings
// preloaded, ordered by id.
func (db *Database) CandidateImages(ctx context.Context, excludeID uint64, fn func(batch []Image) error) error {
	var batch []Image
	result := db.Clauses(dbresolver.Read).WithContext(ctx).
		Preload("Embedding").
		Where("features_extracted = ? AND id <> ?", true, excludeID).
		Order("id").
		FindInBatches(&batch, config.BATCH_SIZE_DATABASE, func(tx *gorm.DB, n int) error {
			return fn(batch)
		})
	return result.Error
}

// ImagesPendingExtraction lists images for a bulk extraction run.
func (db *Database) ImagesPendingExtraction(ctx context.Context, seedOnly, reextract bool, limit int) (images []Image, err error) {
	query := db.Clauses(dbresolver.Read).WithContext(ctx).Model(&Image{}).Order("id")
	if seedOnly {
		query = query.Where("is_seed = ?", true)
	}
	if !reextract {
		query = query.Where("features_extracted = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&images)
	if result.Error != nil {
		return nil, result.Error
	}
	return images, nil
}

// SaveEmbedding records a freshly extracted vector for the image, replacing
// any previous one, and flags the image as searchable.
func (db *Database) SaveEmbedding(ctx context.Context, imageID uint64, vector []float32, model string, elapsed time.Duration) error {
	return db.Clauses(dbresolver.Write).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		embedding := Embedding{
			ImageID:        imageID,
			Vector:         VectorField(vector),
			Model:          model,
			VectorSize:     len(vector),
			ExtractionTime: elapsed.Seconds(),
			CreatedAt:      time.Now().UTC(),
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "image_id"}},
			UpdateAll: true,
		}).Create(&embedding)
		if result.Error != nil {
			return result.Error
		}
		result = tx.Model(&Image{}).Where("id = ?", imageID).Updates(map[string]any{
			"features_extracted": true,
			"processing_error":   "",
		})
		return result.Error
	})
}

// MarkImageFailed records the extraction failure and removes the image from
// the candidate pool until a later extraction succeeds.
func (db *Database) MarkImageFailed(ctx context.Context, imageID uint64, message string) error {
	result := db.Clauses(dbresolver.Write).WithContext(ctx).
		Model(&Image{}).
		Where("id = ?", imageID).
		Updates(map[string]any{
			"features_extracted": false,
			"processing_error":   message,
		})
	return result.Error
}

// DeleteImage removes the image and its embedding.
func (db *Database) DeleteImage(ctx context.Context, imageID uint64) error {
	return db.Clauses(dbresolver.Write).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.Where("image_id = ?", imageID).Delete(&Embedding{}); result.Error != nil {
			return result.Error
		}
		result := tx.Delete(&Image{}, imageID)
		return result.Error
	})
}
