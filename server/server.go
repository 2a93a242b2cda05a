package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/expki/go-imagesearch/config"
	"github.com/expki/go-imagesearch/database"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/extractor"
	"github.com/expki/go-imagesearch/ingest"
	"github.com/expki/go-imagesearch/logger"
	"github.com/expki/go-imagesearch/search"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"
)

var index atomic.Uint64

type Server struct {
	db       *database.Database
	searcher *search.Searcher
	batch    *search.BatchSearcher
	ingestor *ingest.Ingestor
	config   config.Config
}

func New(cfg config.Config, db *database.Database, ex extractor.Extractor) *Server {
	return &Server{
		db:       db,
		searcher: search.New(db, cfg.Search),
		batch:    search.NewBatch(db),
		ingestor: ingest.New(db, ex, cfg.Server.UploadDir),
		config:   cfg,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", s.SearchHttp)
	mux.HandleFunc("/api/search/batch", s.BatchSearchHttp)
	mux.HandleFunc("/api/cache/rebuild", s.RebuildCacheHttp)
	mux.HandleFunc("/api/upload", s.UploadHttp)
	mux.HandleFunc("/api/images", s.ImagesHttp)
	mux.HandleFunc("/api/delete", s.DeleteImageHttp)
	return mux
}

// Run serves the API over HTTP and, when configured, HTTPS with http2 until
// the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	// warm the batch snapshot so the first batch search does not pay for it
	if err := s.batch.BuildCache(ctx); err != nil {
		return err
	}

	handler := s.Handler()
	group, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:    s.config.Server.HttpAddress,
		Handler: handler,
	}
	group.Go(func() error {
		logger.Sugar().Infof("http server listening on %s", httpServer.Addr)
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	var httpsServer *http.Server
	if s.config.Server.HttpsAddress != "" {
		if err := s.config.TLS.Configurate(); err != nil {
			return err
		}
		httpsServer = &http.Server{
			Addr:    s.config.Server.HttpsAddress,
			Handler: handler,
			TLSConfig: &tls.Config{
				GetCertificate: s.config.TLS.GetCertificate,
				MinVersion:     tls.VersionTLS12,
			},
		}
		if err := http2.ConfigureServer(httpsServer, &http2.Server{}); err != nil {
			return err
		}
		group.Go(func() error {
			logger.Sugar().Infof("https server listening on %s", httpsServer.Addr)
			err := httpsServer.ListenAndServeTLS("", "")
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
		if httpsServer != nil {
			httpsServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	return group.Wait()
}
