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
	"gorm.io/gorm"
)

func (s *Server) DeleteImageHttp(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	txid := index.Add(1)
	logger.Sugar().Debugf("%d delete image started", txid)
	w.Header().Set("Content-Type", "application/json")

	// Ensure the request method is POST or DELETE
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
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
	type deleteImage struct {
		ImageID uint64 `json:"image_id"`
	}
	var req deleteImage
	err = json.Unmarshal(body, &req)
	if err != nil {
		logger.Sugar().Debugf("%d request invalid: %v", txid, err)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Invalid request"}`)
		return
	}

	// Handle the delete request
	err = s.DeleteImage(r.Context(), req.ImageID)
	if err == nil {
		// delete was successful
	} else if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Sugar().Debugf("%d image not found", txid)
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"Image not found"}`)
		return
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		logger.Sugar().Warnf("%d delete request canceled after %s", txid, time.Since(start).String())
		w.WriteHeader(499)
		io.WriteString(w, `{"error":"Client canceled delete request"}`)
		return
	} else {
		logger.Sugar().Errorf("%d delete request failed: %s", txid, err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Delete request failed"}`)
		return
	}

	// Set the response headers and write the JSON response
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `{"success":true}`)
	logger.Sugar().Infof("%d delete request suceeded (%dms)", txid, time.Since(start).Milliseconds())
}

// DeleteImage removes the image row, its embedding and its stored file.
func (s *Server) DeleteImage(ctx context.Context, imageID uint64) error {
	image, err := s.db.ImageByID(ctx, imageID)
	if err != nil {
		return err
	}
	if err := s.db.DeleteImage(ctx, image.ID); err != nil {
		return err
	}
	if image.FilePath != "" {
		if err := os.Remove(image.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Sugar().Warnf("removing stored file %q failed: %v", image.FilePath, err)
		}
	}
	return nil
}
