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
	"gorm.io/gorm"
)

type SearchRequest struct {
	ImageID    uint64   `json:"image_id"`
	Threshold  *float64 `json:"threshold,omitempty"`
	MaxResults *int     `json:"max_results,omitempty"`
	UserID     *uint64  `json:"user_id,omitempty"`
}

type SearchResponse struct {
	Results         []SearchResultInfo `json:"results"`
	SearchTime      float64            `json:"search_time"`
	ThresholdUsed   float64            `json:"threshold_used"`
	MaxResults      int                `json:"max_results"`
	TotalCandidates int64              `json:"total_candidates"`
	SearchQueryID   uint64             `json:"search_query_id,omitempty"`
	Message         string             `json:"message,omitempty"`
}

type SearchResultInfo struct {
	ImageID    uint64  `json:"image_id"`
	Title      string  `json:"title,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	Similarity float64 `json:"similarity"`
	Rank       int     `json:"rank"`
}

func (s *Server) SearchHttp(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	txid := index.Add(1)
	logger.Sugar().Debugf("%d search request started", txid)
	w.Header().Set("Content-Type", "application/json")

	// Ensure the request method is POST or GET
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		logger.Sugar().Debugf("%d request method denied: %s", txid, r.Method)
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		io.WriteString(w, `{"error":"Invalid request method"}`)
		return
	}

	// Read the request body
	logger.Sugar().Debugf("%d reading request body", txid)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Sugar().Debugf("%d request body invalid: %v", txid, err)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Invalid request body"}`)
		return
	}
	defer r.Body.Close()

	// Parse the JSON request body into the RequestBody struct
	logger.Sugar().Debugf("%d unmarshing request body", txid)
	var req SearchRequest
	err = json.Unmarshal(body, &req)
	if err != nil {
		logger.Sugar().Debugf("%d request invalid: %v", txid, err)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Invalid request"}`)
		return
	}

	// Handle the search request
	res, err := s.Search(r.Context(), req)
	if err == nil {
		// search was successful
	} else if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Sugar().Debugf("%d query image not found", txid)
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"Query image not found"}`)
		return
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		// search request canceled
		logger.Sugar().Warnf("%d search request canceled after %s", txid, time.Since(start).String())
		w.WriteHeader(499)
		io.WriteString(w, `{"error":"Client canceled search request"}`)
		return
	} else {
		// search failed
		logger.Sugar().Errorf("%d search request failed: %s", txid, err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Search request failed"}`)
		return
	}

	resBytes, err := json.Marshal(res)
	if err != nil {
		logger.Sugar().Errorf("%d response marshal failed: %v", txid, err)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Response failed"}`)
		return
	}

	// Set the response headers and write the JSON response
	w.WriteHeader(http.StatusOK)
	w.Write(resBytes)
	logger.Sugar().Infof("%d search request suceeded (%dms)", txid, time.Since(start).Milliseconds())
}

// Search resolves the query image and runs the similarity search.
func (s *Server) Search(ctx context.Context, req SearchRequest) (res SearchResponse, err error) {
	queryImage, err := s.db.ImageByID(ctx, req.ImageID)
	if err != nil {
		return res, err
	}

	result, err := s.searcher.Search(ctx, queryImage, search.Options{
		Threshold:  req.Threshold,
		MaxResults: req.MaxResults,
		UserID:     req.UserID,
	})
	if err != nil {
		return res, err
	}

	return searchResponse(result), nil
}

func searchResponse(result search.Result) (res SearchResponse) {
	res = SearchResponse{
		Results:         make([]SearchResultInfo, len(result.Hits)),
		SearchTime:      result.SearchTime,
		ThresholdUsed:   result.ThresholdUsed,
		MaxResults:      result.MaxResultsUsed,
		TotalCandidates: result.TotalCandidates,
		SearchQueryID:   result.QueryID,
		Message:         result.Message,
	}
	for idx, hit := range result.Hits {
		res.Results[idx] = SearchResultInfo{
			ImageID:    hit.Image.ID,
			Title:      hit.Image.Title,
			Filename:   hit.Image.OriginalFilename,
			Similarity: hit.Score,
			Rank:       idx + 1,
		}
	}
	return res
}
