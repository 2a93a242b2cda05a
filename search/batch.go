package search

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/expki/go-imagesearch/compute"
	"github.com/expki/go-imagesearch/config"
	"github.com/expki/go-imagesearch/database"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/logger"
	"github.com/schollz/progressbar/v3"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// Snapshot is a point-in-time copy of the extracted corpus: one matrix and a
// parallel image list in the same iteration order. It is immutable after
// publication; later image mutations are not reflected until a rebuild.
type Snapshot struct {
	matrix compute.Matrix
	images []database.Image
	built  time.Time
}

// Images returns the snapshot's image list in matrix row order.
func (s *Snapshot) Images() []database.Image {
	return s.images
}

// Len returns the number of cached embeddings.
func (s *Snapshot) Len() int {
	return len(s.images)
}

// Built returns the snapshot construction time.
func (s *Snapshot) Built() time.Time {
	return s.built
}

// BatchSearcher amortizes repeated searches over a static or slowly-changing
// corpus. It does not write audit records; that is the plain Searcher's
// concern.
type BatchSearcher struct {
	db       *database.Database
	snapshot atomic.Pointer[Snapshot]

	memoLock sync.RWMutex
	memo     map[uint64][]float32
}

func NewBatch(db *database.Database) *BatchSearcher {
	return &BatchSearcher{
		db:   db,
		memo: make(map[uint64][]float32),
	}
}

// BuildCache loads every extracted image's vector into a fresh snapshot and
// swaps it in atomically. Concurrent readers keep the previous snapshot
// until the swap completes; none ever observes a partially built matrix.
func (b *BatchSearcher) BuildCache(ctx context.Context) error {
	start := time.Now()

	var total int64
	result := b.db.Clauses(dbresolver.Read).WithContext(ctx).
		Model(&database.Image{}).
		Where("features_extracted = ?", true).
		Count(&total)
	if result.Error != nil {
		return errors.Join(errors.New("counting extracted images failed"), result.Error)
	}

	snapshot := &Snapshot{built: start}
	if total == 0 {
		b.snapshot.Store(snapshot)
		logger.Sugar().Debug("feature cache built empty: no extracted images")
		return nil
	}

	images := make([]database.Image, 0, total)
	vectors := make([][]float32, 0, total)
	bar := progressbar.Default(total, "Building feature cache...")
	var batch []database.Image
	result = b.db.Clauses(dbresolver.Read).WithContext(ctx).
		Preload("Embedding").
		Where("features_extracted = ?", true).
		Order("id").
		FindInBatches(&batch, config.BATCH_SIZE_DATABASE, func(tx *gorm.DB, n int) error {
			for _, image := range batch {
				if image.Embedding == nil || len(image.Embedding.Vector) == 0 {
					continue
				}
				images = append(images, image)
				vectors = append(vectors, image.Embedding.Vector.Underlying())
			}
			bar.Add(len(batch))
			return nil
		})
	bar.Finish()
	if result.Error != nil {
		return errors.Join(errors.New("loading feature cache failed"), result.Error)
	}

	if len(vectors) > 0 {
		snapshot.matrix = compute.NewMatrix(vectors)
		snapshot.images = images
	}
	b.snapshot.Store(snapshot)
	logger.Sugar().Infof("feature cache built in %s (%d images)", time.Since(start).String(), len(images))
	return nil
}

// Snapshot returns the current snapshot, or nil when BuildCache has not run.
func (b *BatchSearcher) Snapshot() *Snapshot {
	return b.snapshot.Load()
}

// SearchWithCache scores the query vector against every cached row in one
// kernel call, then filters and ranks the way Searcher.Search does. Returns
// nil when the cache is unbuilt or empty.
func (b *BatchSearcher) SearchWithCache(queryVector []float32, threshold float64, maxResults int) []Hit {
	snapshot := b.snapshot.Load()
	if snapshot == nil || snapshot.matrix == nil {
		return nil
	}
	if threshold < 0 {
		threshold = 0
	} else if threshold > 1 {
		threshold = 1
	}

	similarities := compute.NewVector(queryVector).CosineSimilarity(snapshot.matrix)

	hits := make([]Hit, 0, len(similarities))
	for idx, score := range similarities {
		if float64(score) < threshold {
			continue
		}
		hits = append(hits, Hit{Image: snapshot.images[idx], Score: float64(score)})
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Image.ID, b.Image.ID)
	})
	if maxResults > 0 && len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits
}

// ErrVectorNotFound is returned by ImageVector for images without a stored
// embedding.
var ErrVectorNotFound = errors.New("image has no stored embedding")

// ImageVector returns the stored vector for one image, memoizing lookups so
// repeated single-image reads outside the batch path hit the store once.
// Missing embeddings are memoized too.
func (b *BatchSearcher) ImageVector(ctx context.Context, imageID uint64) ([]float32, error) {
	b.memoLock.RLock()
	vector, ok := b.memo[imageID]
	b.memoLock.RUnlock()
	if ok {
		if vector == nil {
			return nil, ErrVectorNotFound
		}
		return vector, nil
	}

	var embedding database.Embedding
	result := b.db.Clauses(dbresolver.Read).WithContext(ctx).Where("image_id = ?", imageID).Take(&embedding)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}

	vector = embedding.Vector.Underlying()
	if len(vector) == 0 {
		vector = nil
	}
	b.memoLock.Lock()
	b.memo[imageID] = vector
	b.memoLock.Unlock()

	if vector == nil {
		return nil, ErrVectorNotFound
	}
	return vector, nil
}
