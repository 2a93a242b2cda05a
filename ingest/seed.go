package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/expki/go-imagesearch/database"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/logger"
	"github.com/schollz/progressbar/v3"
	"gorm.io/plugin/dbresolver"
)

// SeedOptions control a seed-image load run.
type SeedOptions struct {
	// Clear deletes existing seed images before loading.
	Clear bool
	// SkipExisting silently skips content-hash duplicates.
	SkipExisting bool
	// Limit caps the number of files loaded, zero means no cap.
	Limit int
}

// SeedStats summarizes a seed load run.
type SeedStats struct {
	Loaded  int
	Skipped int
	Failed  int
}

// LoadSeedImages loads every image file under dir into the store as seed
// images. Extraction is a separate step; freshly loaded rows are not yet
// searchable.
func (i *Ingestor) LoadSeedImages(ctx context.Context, dir string, opts SeedOptions) (stats SeedStats, err error) {
	if _, err := os.Stat(dir); err != nil {
		return stats, fmt.Errorf("seed directory not found: %w", err)
	}

	if opts.Clear {
		result := i.db.Clauses(dbresolver.Write).WithContext(ctx).
			Where("is_seed = ?", true).
			Delete(&database.Image{})
		if result.Error != nil {
			return stats, errors.Join(errors.New("clearing seed images failed"), result.Error)
		}
		logger.Sugar().Infof("deleted %d existing seed images", result.RowsAffected)
	}

	files, err := seedFiles(dir)
	if err != nil {
		return stats, err
	}
	if opts.Limit > 0 && len(files) > opts.Limit {
		files = files[:opts.Limit]
	}
	if len(files) == 0 {
		logger.Sugar().Warn("no image files found in seed directory")
		return stats, nil
	}
	logger.Sugar().Infof("loading %d seed images", len(files))

	bar := progressbar.Default(int64(len(files)), "Loading seed images...")
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		_, ingestErr := i.IngestFile(ctx, path, title, true)
		if ingestErr == nil {
			stats.Loaded++
		} else if errors.Is(ingestErr, database.ErrDuplicateImage) && opts.SkipExisting {
			stats.Skipped++
		} else if errors.Is(ingestErr, context.Canceled) || errors.Is(ingestErr, context.DeadlineExceeded) {
			return stats, ingestErr
		} else {
			logger.Sugar().Errorf("seed image %q failed: %v", path, ingestErr)
			stats.Failed++
		}
		bar.Add(1)
	}
	bar.Finish()

	logger.Sugar().Infof("seed load finished: %d loaded, %d skipped, %d failed", stats.Loaded, stats.Skipped, stats.Failed)
	return stats, nil
}

// seedFiles lists supported image files directly under dir, sorted for a
// deterministic load order.
func seedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read seed directory: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if allowedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
