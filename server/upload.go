package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/expki/go-imagesearch/config"
	"github.com/expki/go-imagesearch/database"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/ingest"
	"github.com/expki/go-imagesearch/logger"
	"github.com/expki/go-imagesearch/search"
)

type UploadResponse struct {
	ImageID uint64          `json:"image_id"`
	Title   string          `json:"title,omitempty"`
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Search  *SearchResponse `json:"search,omitempty"`
}

// UploadHttp ingests a multipart image upload, extracts its features and,
// when requested, immediately searches for similar images. An extraction
// failure discards the uploaded image so no unsearchable row is left behind.
func (s *Server) UploadHttp(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	txid := index.Add(1)
	logger.Sugar().Debugf("%d upload request started", txid)
	w.Header().Set("Content-Type", "application/json")

	// Ensure the request method is POST
	if r.Method != http.MethodPost {
		logger.Sugar().Debugf("%d request method denied: %s", txid, r.Method)
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		io.WriteString(w, `{"error":"Invalid request method"}`)
		return
	}

	// Read the multipart form
	logger.Sugar().Debugf("%d reading multipart form", txid)
	r.Body = http.MaxBytesReader(w, r.Body, config.MAX_UPLOAD_SIZE)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		logger.Sugar().Debugf("%d multipart form invalid: %v", txid, err)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Invalid multipart form"}`)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		logger.Sugar().Debugf("%d image field missing: %v", txid, err)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Missing image field"}`)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		logger.Sugar().Debugf("%d image read failed: %v", txid, err)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Invalid image data"}`)
		return
	}

	// Ingest the image
	logger.Sugar().Debugf("%d ingesting image %q", txid, header.Filename)
	image, err := s.ingestor.IngestBytes(r.Context(), data, header.Filename, r.FormValue("title"), false)
	if err == nil {
		// image stored
	} else if errors.Is(err, ingest.ErrUnsupportedFormat) {
		logger.Sugar().Debugf("%d unsupported format: %q", txid, header.Filename)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Unsupported image format"}`)
		return
	} else if errors.Is(err, database.ErrDuplicateImage) {
		logger.Sugar().Debugf("%d duplicate image: %q", txid, header.Filename)
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"Image already exists"}`)
		return
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		logger.Sugar().Warnf("%d upload request canceled after %s", txid, time.Since(start).String())
		w.WriteHeader(499)
		io.WriteString(w, `{"error":"Client canceled upload request"}`)
		return
	} else {
		logger.Sugar().Errorf("%d upload failed: %v", txid, err)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Upload failed"}`)
		return
	}

	// Extract features; a failed upload leaves no orphaned row behind
	logger.Sugar().Debugf("%d extracting features for image %d", txid, image.ID)
	err = s.ingestor.ExtractAndStore(r.Context(), image)
	if err != nil {
		s.ingestor.Discard(context.WithoutCancel(r.Context()), image)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			logger.Sugar().Warnf("%d upload request canceled after %s", txid, time.Since(start).String())
			w.WriteHeader(499)
			io.WriteString(w, `{"error":"Client canceled upload request"}`)
			return
		}
		logger.Sugar().Errorf("%d feature extraction failed: %v", txid, err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"error":"Feature extraction failed"}`)
		return
	}

	res := UploadResponse{
		ImageID: image.ID,
		Title:   image.Title,
		Width:   image.Width,
		Height:  image.Height,
	}

	// Optional upload-then-search flow
	if parsed, _ := strconv.ParseBool(r.FormValue("search")); parsed {
		logger.Sugar().Debugf("%d searching with uploaded image %d", txid, image.ID)
		opts := search.Options{}
		if value, err := strconv.ParseFloat(r.FormValue("threshold"), 64); err == nil {
			opts.Threshold = &value
		}
		if value, err := strconv.Atoi(r.FormValue("max_results")); err == nil {
			opts.MaxResults = &value
		}
		result, err := s.searcher.Search(r.Context(), image, opts)
		if err != nil {
			logger.Sugar().Errorf("%d search after upload failed: %v", txid, err)
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":"Search request failed"}`)
			return
		}
		searchRes := searchResponse(result)
		res.Search = &searchRes
	}

	resBytes, err := json.Marshal(res)
	if err != nil {
		logger.Sugar().Errorf("%d response marshal failed: %v", txid, err)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Response failed"}`)
		return
	}

	// Set the response headers and write the JSON response
	w.WriteHeader(http.StatusCreated)
	w.Write(resBytes)
	logger.Sugar().Infof("%d upload request suceeded (%dms)", txid, time.Since(start).Milliseconds())
}
