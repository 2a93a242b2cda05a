package ingest

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/expki/go-imagesearch/config"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/logger"
	"github.com/schollz/progressbar/v3"
)

// BulkExtractOptions select which images a bulk extraction run processes.
type BulkExtractOptions struct {
	// SeedOnly restricts the run to seed images.
	SeedOnly bool
	// Reextract includes images that already have features.
	Reextract bool
	// Limit caps the number of images processed, zero means no cap.
	Limit int
	// BatchSize groups progress output; extraction itself is sequential.
	BatchSize int
}

// BulkExtractStats summarizes a bulk extraction run.
type BulkExtractStats struct {
	Processed int
	Failed    int
	Elapsed   time.Duration
}

// BulkExtract extracts features for every pending image, sequentially in
// small groups. Per-image failures are recorded on the image row and the run
// continues; only store failures and cancellation abort it. Runs must be
// serialized by the caller.
func (i *Ingestor) BulkExtract(ctx context.Context, opts BulkExtractOptions) (stats BulkExtractStats, err error) {
	start := time.Now()
	if opts.BatchSize < 1 {
		opts.BatchSize = config.BATCH_SIZE_EXTRACT
	}

	images, err := i.db.ImagesPendingExtraction(ctx, opts.SeedOnly, opts.Reextract, opts.Limit)
	if err != nil {
		return stats, errors.Join(errors.New("listing pending images failed"), err)
	}
	if len(images) == 0 {
		logger.Sugar().Info("no images need feature extraction")
		return stats, nil
	}
	logger.Sugar().Infof("extracting features for %d images with model %s", len(images), i.extractor.ModelName())

	bar := progressbar.Default(int64(len(images)), "Extracting features...")
	for idx := 0; idx < len(images); idx += opts.BatchSize {
		end := min(idx+opts.BatchSize, len(images))
		for _, image := range images[idx:end] {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if _, statErr := os.Stat(image.FilePath); statErr != nil {
				logger.Sugar().Errorf("image %d file missing: %v", image.ID, statErr)
				if markErr := i.db.MarkImageFailed(ctx, image.ID, statErr.Error()); markErr != nil {
					return stats, markErr
				}
				stats.Failed++
				bar.Add(1)
				continue
			}
			extractErr := i.ExtractAndStore(ctx, image)
			if extractErr == nil {
				stats.Processed++
			} else if errors.Is(extractErr, context.Canceled) || errors.Is(extractErr, context.DeadlineExceeded) {
				return stats, extractErr
			} else {
				logger.Sugar().Errorf("image %d extraction failed: %v", image.ID, extractErr)
				stats.Failed++
			}
			bar.Add(1)
		}
	}
	bar.Finish()

	stats.Elapsed = time.Since(start)
	logger.Sugar().Infof("bulk extraction finished: %d processed, %d failed in %s", stats.Processed, stats.Failed, stats.Elapsed.String())
	return stats, nil
}
