package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/logger"
	"github.com/expki/go-imagesearch/search"
)

type BatchSearchRequest struct {
	ImageIDs   []uint64 `json:"image_ids"`
	Threshold  *float64 `json:"threshold,omitempty"`
	MaxResults *int     `json:"max_results,omitempty"`
}

type BatchSearchResponse struct {
	Queries    []BatchQueryResult `json:"queries"`
	CacheSize  int                `json:"cache_size"`
	CacheBuilt time.Time          `json:"cache_built"`
}

type BatchQueryResult struct {
	ImageID uint64             `json:"image_id"`
	Results []SearchResultInfo `json:"results,omitempty"`
	Message string             `json:"message,omitempty"`
}

func (s *Server) BatchSearchHttp(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	txid := index.Add(1)
	logger.Sugar().Debugf("%d batch search request started", txid)
	w.Header().Set("Content-Type", "application/json")

	// Ensure the request method is POST
	if r.Method != http.MethodPost {
		logger.Sugar().Debugf("%d request method denied: %s", txid, r.Method)
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		io.WriteString(w, `{"error":"Invalid request method"}`)
		return
	}

	// Read the request body
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Sugar().Debugf("%d request body invalid: %v", txid, err)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Invalid request body"}`)
		return
	}
	defer r.Body.Close()

	// Parse the JSON request body into the RequestBody struct
	var req BatchSearchRequest
	err = json.Unmarshal(body, &req)
	if err != nil {
		logger.Sugar().Debugf("%d request invalid: %v", txid, err)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Invalid request"}`)
		return
	}
	if len(req.ImageIDs) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"No image ids provided"}`)
		return
	}

	// Handle the batch search request
	res, err := s.BatchSearch(r.Context(), req)
	if err == nil {
		// batch search was successful
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		logger.Sugar().Warnf("%d batch search request canceled after %s", txid, time.Since(start).String())
		w.WriteHeader(499)
		io.WriteString(w, `{"error":"Client canceled batch search request"}`)
		return
	} else {
		logger.Sugar().Errorf("%d batch search request failed: %s", txid, err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Batch search request failed"}`)
		return
	}

	resBytes, err := json.Marshal(res)
	if err != nil {
		logger.Sugar().Errorf("%d response marshal failed: %v", txid, err)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Response failed"}`)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write(resBytes)
	logger.Sugar().Infof("%d batch search request suceeded (%dms)", txid, time.Since(start).Milliseconds())
}

// BatchSearch answers many queries against one corpus snapshot, building the
// cache first when it has not been built yet. Queries without a stored
// embedding get a per-query message rather than failing the batch.
func (s *Server) BatchSearch(ctx context.Context, req BatchSearchRequest) (res BatchSearchResponse, err error) {
	if s.batch.Snapshot() == nil {
		if err := s.batch.BuildCache(ctx); err != nil {
			return res, err
		}
	}
	snapshot := s.batch.Snapshot()
	res.CacheSize = snapshot.Len()
	res.CacheBuilt = snapshot.Built()

	threshold := s.config.Search.SimilarityThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	maxResults := s.config.Search.MaxResults
	if req.MaxResults != nil && *req.MaxResults > 0 {
		maxResults = *req.MaxResults
	}

	res.Queries = make([]BatchQueryResult, 0, len(req.ImageIDs))
	for _, imageID := range req.ImageIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		query := BatchQueryResult{ImageID: imageID}

		vector, err := s.batch.ImageVector(ctx, imageID)
		if errors.Is(err, search.ErrVectorNotFound) {
			query.Message = search.MessageNoFeatures
			res.Queries = append(res.Queries, query)
			continue
		} else if err != nil {
			return res, err
		}

		// the snapshot includes the query image itself, request one extra
		// hit so the self-match can be dropped without shrinking the page
		hits := s.batch.SearchWithCache(vector, threshold, maxResults+1)
		for _, hit := range hits {
			if hit.Image.ID == imageID {
				continue
			}
			if len(query.Results) == maxResults {
				break
			}
			query.Results = append(query.Results, SearchResultInfo{
				ImageID:    hit.Image.ID,
				Title:      hit.Image.Title,
				Filename:   hit.Image.OriginalFilename,
				Similarity: hit.Score,
				Rank:       len(query.Results) + 1,
			})
		}
		if len(query.Results) == 0 && query.Message == "" && res.CacheSize <= 1 {
			query.Message = search.MessageNoCandidates
		}
		res.Queries = append(res.Queries, query)
	}
	return res, nil
}

// RebuildCacheHttp rebuilds the batch snapshot, picking up images ingested
// since the previous build.
func (s *Server) RebuildCacheHttp(w http.ResponseWriter, r *http.Request) {
	txid := index.Add(1)
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		io.WriteString(w, `{"error":"Invalid request method"}`)
		return
	}

	if err := s.batch.BuildCache(r.Context()); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(499)
			io.WriteString(w, `{"error":"Client canceled cache rebuild"}`)
			return
		}
		logger.Sugar().Errorf("%d cache rebuild failed: %v", txid, err)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Cache rebuild failed"}`)
		return
	}

	snapshot := s.batch.Snapshot()
	resBytes, _ := json.Marshal(map[string]any{
		"cache_size":  snapshot.Len(),
		"cache_built": snapshot.Built(),
	})
	w.WriteHeader(http.StatusOK)
	w.Write(resBytes)
	logger.Sugar().Infof("%d feature cache rebuilt (%d images)", txid, snapshot.Len())
}
