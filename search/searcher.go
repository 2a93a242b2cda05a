// Package search implements the similarity-search core: a linear cosine scan
// over the stored embedding corpus with threshold filtering, deterministic
// ranking and append-only audit logging.
package search

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/expki/go-imagesearch/compute"
	"github.com/expki/go-imagesearch/config"
	"github.com/expki/go-imagesearch/database"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/logger"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

const (
	// MessageNoFeatures is returned when the query image has no stored
	// embedding.
	MessageNoFeatures = "query image features not found"
	// MessageNoCandidates is returned when the corpus holds no other
	// extracted images.
	MessageNoCandidates = "no other images available for comparison"
)

type Searcher struct {
	db  *database.Database
	cfg config.Search
}

func New(db *database.Database, cfg config.Search) *Searcher {
	return &Searcher{
		db:  db,
		cfg: cfg.WithDefaults(),
	}
}

// Options override the configured threshold and result cap for one search.
type Options struct {
	Threshold  *float64
	MaxResults *int
	// UserID attributes the search in the audit log.
	UserID *uint64
}

// effective resolves overrides against the defaults: the threshold is
// clamped to [0, 1] and a non-positive cap falls back to the default.
func (o Options) effective(cfg config.Search) (threshold float64, maxResults int) {
	threshold = cfg.SimilarityThreshold
	if o.Threshold != nil {
		threshold = *o.Threshold
	}
	if threshold < 0 {
		threshold = 0
	} else if threshold > 1 {
		threshold = 1
	}
	maxResults = cfg.MaxResults
	if o.MaxResults != nil && *o.MaxResults > 0 {
		maxResults = *o.MaxResults
	}
	return threshold, maxResults
}

// Hit is one ranked candidate.
type Hit struct {
	Image database.Image
	Score float64
}

// Result carries the ranked hits and the scalar metadata of one search.
type Result struct {
	Hits            []Hit
	SearchTime      float64
	ThresholdUsed   float64
	MaxResultsUsed  int
	TotalCandidates int64
	// QueryID is the audit record id, zero when the query was not logged.
	QueryID uint64
	// Message explains an empty result that is not a failure.
	Message string
	// AuditErr reports an audit-logging failure. The hits are valid
	// regardless.
	AuditErr error
}

// Search finds stored images similar to the query image. The candidate pool
// is every extracted image except the query itself. A missing query
// embedding or an empty pool yields a structured empty Result, not an
// error; only a store failure during the scan fails the operation.
func (s *Searcher) Search(ctx context.Context, queryImage database.Image, opts Options) (res Result, err error) {
	start := time.Now()
	res.ThresholdUsed, res.MaxResultsUsed = opts.effective(s.cfg)

	// Query embedding, before touching the candidate pool
	queryVector, err := s.queryVector(ctx, queryImage)
	if err != nil {
		return res, err
	}
	if queryVector == nil {
		res.Message = MessageNoFeatures
		res.SearchTime = time.Since(start).Seconds()
		return res, nil
	}
	target := compute.NewVector(queryVector)

	// Candidate pool size, reported even when nothing clears the threshold
	res.TotalCandidates, err = s.db.CountCandidates(ctx, queryImage.ID)
	if err != nil {
		return res, errors.Join(errors.New("counting candidate pool failed"), err)
	}
	if res.TotalCandidates == 0 {
		res.Message = MessageNoCandidates
		res.SearchTime = time.Since(start).Seconds()
		return res, nil
	}

	// Linear scan, one batch matrix at a time
	var kept []Hit
	err = s.db.CandidateImages(ctx, queryImage.ID, func(batch []database.Image) error {
		images := make([]database.Image, 0, len(batch))
		vectors := make([][]float32, 0, len(batch))
		for _, candidate := range batch {
			// a candidate with unreadable features is skipped, not a failure
			if candidate.Embedding == nil || len(candidate.Embedding.Vector) != target.Dim() {
				continue
			}
			images = append(images, candidate)
			vectors = append(vectors, candidate.Embedding.Vector.Underlying())
		}
		if len(vectors) == 0 {
			return nil
		}
		for idx, score := range target.CosineSimilarity(compute.NewMatrix(vectors)) {
			if float64(score) < res.ThresholdUsed {
				continue
			}
			kept = append(kept, Hit{Image: images[idx], Score: float64(score)})
		}
		return nil
	})
	if err != nil {
		return res, errors.Join(errors.New("candidate scan failed"), err)
	}

	// Sort by score descending, ties by ascending image id for determinism
	slices.SortFunc(kept, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Image.ID, b.Image.ID)
	})
	if len(kept) > res.MaxResultsUsed {
		kept = kept[:res.MaxResultsUsed]
	}
	res.Hits = kept
	res.SearchTime = time.Since(start).Seconds()

	// Audit logging never fails the search
	s.logSearch(ctx, queryImage, opts, &res)

	return res, nil
}

// queryVector resolves the query image's stored embedding, reading the store
// when the association was not preloaded. Returns nil without error when no
// embedding exists.
func (s *Searcher) queryVector(ctx context.Context, queryImage database.Image) ([]float32, error) {
	if queryImage.Embedding != nil && len(queryImage.Embedding.Vector) > 0 {
		return queryImage.Embedding.Vector.Underlying(), nil
	}
	var embedding database.Embedding
	result := s.db.Clauses(dbresolver.Read).WithContext(ctx).Where("image_id = ?", queryImage.ID).Take(&embedding)
	if result.Error == nil {
		if len(embedding.Vector) == 0 {
			return nil, nil
		}
		return embedding.Vector.Underlying(), nil
	}
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errors.Is(result.Error, context.Canceled) || errors.Is(result.Error, context.DeadlineExceeded) {
		return nil, result.Error
	}
	return nil, errors.Join(errors.New("query embedding retrieval failed"), result.Error)
}

// logSearch records the SearchQuery row and one SimilarityResult row per
// hit. Failures are reported on the result and logged, never returned.
func (s *Searcher) logSearch(ctx context.Context, queryImage database.Image, opts Options, res *Result) {
	query := database.SearchQuery{
		QueryImageID:        queryImage.ID,
		UserID:              opts.UserID,
		SimilarityThreshold: res.ThresholdUsed,
		MaxResults:          res.MaxResultsUsed,
		ResultsCount:        len(res.Hits),
		SearchTime:          res.SearchTime,
	}
	result := s.db.Clauses(dbresolver.Write).WithContext(ctx).Create(&query)
	if result.Error != nil {
		logger.Sugar().Errorf("search query logging failed: %v", result.Error)
		res.AuditErr = errors.Join(errors.New("search query logging failed"), result.Error)
		return
	}
	res.QueryID = query.ID

	if len(res.Hits) == 0 {
		return
	}
	rows := make([]database.SimilarityResult, len(res.Hits))
	for idx, hit := range res.Hits {
		rows[idx] = database.SimilarityResult{
			SearchQueryID: query.ID,
			ImageID:       hit.Image.ID,
			Score:         hit.Score,
			Rank:          idx + 1,
		}
	}
	result = s.db.Clauses(dbresolver.Write).WithContext(ctx).Create(&rows)
	if result.Error != nil {
		logger.Sugar().Errorf("similarity result logging failed: %v", result.Error)
		res.AuditErr = errors.Join(errors.New("similarity result logging failed"), result.Error)
	}
}
