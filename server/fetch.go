package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/expki/go-imagesearch/config"
	"github.com/expki/go-imagesearch/database"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/logger"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

type FetchImagesRequest struct {
	ImageID  uint64 `json:"image_id,omitempty"`
	SeedOnly bool   `json:"seed_only,omitempty"`
	Count    int    `json:"count,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

type FetchImagesResponse struct {
	Images []ImageInfo `json:"images"`
}

type ImageInfo struct {
	ImageID           uint64 `json:"image_id"`
	Title             string `json:"title,omitempty"`
	Filename          string `json:"filename,omitempty"`
	FileSize          int64  `json:"file_size"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	IsSeed            bool   `json:"is_seed"`
	FeaturesExtracted bool   `json:"features_extracted"`
	ProcessingError   string `json:"processing_error,omitempty"`
}

func (s *Server) ImagesHttp(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	txid := index.Add(1)
	logger.Sugar().Debugf("%d fetch images started", txid)
	w.Header().Set("Content-Type", "application/json")

	// Ensure the request method is GET or POST
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
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
	var req FetchImagesRequest
	if len(body) > 0 {
		logger.Sugar().Debugf("%d unmarshing request body", txid)
		err = json.Unmarshal(body, &req)
		if err != nil {
			logger.Sugar().Debugf("%d request invalid: %v", txid, err)
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"Invalid request"}`)
			return
		}
	}

	// Handle the fetch request
	res, err := s.FetchImages(r.Context(), req)
	if err == nil {
		// fetch was successful
	} else if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Sugar().Debugf("%d image not found", txid)
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"Image not found"}`)
		return
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		logger.Sugar().Warnf("%d fetch request canceled after %s", txid, time.Since(start).String())
		w.WriteHeader(499)
		io.WriteString(w, `{"error":"Client canceled fetch request"}`)
		return
	} else {
		logger.Sugar().Errorf("%d fetch request failed: %s", txid, err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Fetch request failed"}`)
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
	logger.Sugar().Infof("%d fetch request suceeded (%dms)", txid, time.Since(start).Milliseconds())
}

// FetchImages lists stored images, or one image when an id is supplied.
func (s *Server) FetchImages(ctx context.Context, req FetchImagesRequest) (res FetchImagesResponse, err error) {
	if req.ImageID != 0 {
		image, err := s.db.ImageByID(ctx, req.ImageID)
		if err != nil {
			return res, err
		}
		res.Images = []ImageInfo{imageInfo(image)}
		return res, nil
	}

	if req.Count < 1 || req.Count > config.BATCH_SIZE_DATABASE {
		req.Count = 100
	}
	query := s.db.Clauses(dbresolver.Read).WithContext(ctx).Model(&database.Image{}).Order("id desc")
	if req.SeedOnly {
		query = query.Where("is_seed = ?", true)
	}
	var images []database.Image
	result := query.Offset(req.Offset).Limit(req.Count).Find(&images)
	if result.Error != nil {
		return res, result.Error
	}
	res.Images = make([]ImageInfo, len(images))
	for idx, image := range images {
		res.Images[idx] = imageInfo(image)
	}
	return res, nil
}

func imageInfo(image database.Image) ImageInfo {
	return ImageInfo{
		ImageID:           image.ID,
		Title:             image.Title,
		Filename:          image.OriginalFilename,
		FileSize:          image.FileSize,
		Width:             image.Width,
		Height:            image.Height,
		IsSeed:            image.IsSeed,
		FeaturesExtracted: image.FeaturesExtracted,
		ProcessingError:   image.ProcessingError,
	}
}
