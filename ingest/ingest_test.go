package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/expki/go-imagesearch/config"
	"github.com/expki/go-imagesearch/database"
	"github.com/expki/go-imagesearch/extractor"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(config.Database{
		Sqlite: fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	return db
}

func newTestIngestor(t *testing.T) (*Ingestor, *database.Database, *extractor.Static) {
	t.Helper()
	db := newTestDB(t)
	static := extractor.NewStatic("stub", 4)
	return New(db, static, t.TempDir()), db, static
}

// pngBytes encodes a small solid-color image; distinct colors give distinct
// content hashes.
func pngBytes(t *testing.T, width, height int, fill color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func TestIngestBytes(t *testing.T) {
	ingestor, _, _ := newTestIngestor(t)
	data := pngBytes(t, 8, 6, color.RGBA{R: 255, A: 255})

	img, err := ingestor.IngestBytes(context.Background(), data, "holiday.png", "Holiday", false)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if img.ID == 0 {
		t.Fatal("image row was not created")
	}
	if img.Title != "Holiday" || img.OriginalFilename != "holiday.png" {
		t.Errorf("metadata = {%q, %q}, want {Holiday, holiday.png}", img.Title, img.OriginalFilename)
	}
	if img.Width != 8 || img.Height != 6 {
		t.Errorf("dimensions = %dx%d, want 8x6", img.Width, img.Height)
	}
	if img.FileSize != int64(len(data)) {
		t.Errorf("file size = %d, want %d", img.FileSize, len(data))
	}
	if len(img.Hash) != 64 {
		t.Errorf("hash = %q, want a hex sha256 digest", img.Hash)
	}
	if img.FeaturesExtracted {
		t.Error("fresh image must not be flagged extracted")
	}
	if filepath.Base(img.FilePath) == "holiday.png" {
		t.Error("stored file kept the client-supplied name")
	}
	stored, err := os.ReadFile(img.FilePath)
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if !bytes.Equal(stored, data) {
		t.Error("stored file differs from the uploaded bytes")
	}
}

func TestIngestBytesDuplicate(t *testing.T) {
	ingestor, _, _ := newTestIngestor(t)
	data := pngBytes(t, 4, 4, color.RGBA{G: 255, A: 255})

	first, err := ingestor.IngestBytes(context.Background(), data, "one.png", "one", false)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	_, err = ingestor.IngestBytes(context.Background(), data, "two.png", "two", false)
	if !errors.Is(err, database.ErrDuplicateImage) {
		t.Fatalf("error = %v, want ErrDuplicateImage", err)
	}

	// the rejected duplicate must not leave a file behind
	entries, err := os.ReadDir(filepath.Dir(first.FilePath))
	if err != nil {
		t.Fatalf("listing upload directory: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("upload directory holds %d files, want 1", len(entries))
	}
}

func TestIngestBytesRejectsBadInput(t *testing.T) {
	ingestor, _, _ := newTestIngestor(t)

	_, err := ingestor.IngestBytes(context.Background(), pngBytes(t, 2, 2, color.White), "anim.gif", "", false)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("gif error = %v, want ErrUnsupportedFormat", err)
	}

	_, err = ingestor.IngestBytes(context.Background(), []byte("not a png"), "broken.png", "", false)
	if err == nil {
		t.Fatal("corrupt file was accepted")
	}
}

func TestExtractAndStore(t *testing.T) {
	ingestor, db, static := newTestIngestor(t)
	ctx := context.Background()
	img, err := ingestor.IngestBytes(ctx, pngBytes(t, 4, 4, color.RGBA{B: 255, A: 255}), "pic.png", "pic", false)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	static.Register(img.FilePath, []float32{0, 1, 0, 0})

	if err := ingestor.ExtractAndStore(ctx, img); err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	loaded, err := db.ImageByID(ctx, img.ID)
	if err != nil {
		t.Fatalf("loading image: %v", err)
	}
	if !loaded.FeaturesExtracted || loaded.Embedding == nil {
		t.Fatal("embedding was not stored")
	}
	if loaded.Embedding.Model != "stub" || loaded.Embedding.VectorSize != 4 {
		t.Errorf("embedding metadata = {%q, %d}, want {stub, 4}", loaded.Embedding.Model, loaded.Embedding.VectorSize)
	}
}

func TestExtractAndStoreRecordsFailure(t *testing.T) {
	ingestor, db, static := newTestIngestor(t)
	ctx := context.Background()
	img, err := ingestor.IngestBytes(ctx, pngBytes(t, 4, 4, color.RGBA{R: 1, A: 255}), "pic.png", "pic", false)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	// no vector registered for the stored path
	if err := ingestor.ExtractAndStore(ctx, img); err == nil {
		t.Fatal("expected an extraction error")
	}
	loaded, err := db.ImageByID(ctx, img.ID)
	if err != nil {
		t.Fatalf("loading image: %v", err)
	}
	if loaded.FeaturesExtracted || loaded.ProcessingError == "" {
		t.Errorf("failure not recorded: extracted=%v error=%q", loaded.FeaturesExtracted, loaded.ProcessingError)
	}

	// a vector of the wrong width is a failure too
	static.Register(img.FilePath, []float32{1, 0, 0})
	if err := ingestor.ExtractAndStore(ctx, img); err == nil {
		t.Fatal("expected a dimension mismatch error")
	}
	loaded, err = db.ImageByID(ctx, img.ID)
	if err != nil {
		t.Fatalf("loading image: %v", err)
	}
	if loaded.FeaturesExtracted {
		t.Error("mismatched vector was accepted")
	}
}

func TestDiscard(t *testing.T) {
	ingestor, db, _ := newTestIngestor(t)
	ctx := context.Background()
	img, err := ingestor.IngestBytes(ctx, pngBytes(t, 4, 4, color.RGBA{R: 2, A: 255}), "pic.png", "pic", false)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	ingestor.Discard(ctx, img)
	if _, err := db.ImageByID(ctx, img.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("error = %v, want ErrRecordNotFound", err)
	}
	if _, err := os.Stat(img.FilePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stored file still present: %v", err)
	}
}

func TestLoadSeedImages(t *testing.T) {
	ingestor, db, _ := newTestIngestor(t)
	ctx := context.Background()

	seedDir := t.TempDir()
	for idx, fill := range []color.Color{color.RGBA{R: 10, A: 255}, color.RGBA{G: 10, A: 255}} {
		path := filepath.Join(seedDir, fmt.Sprintf("seed-%d.png", idx))
		if err := os.WriteFile(path, pngBytes(t, 4, 4, fill), 0o644); err != nil {
			t.Fatalf("writing seed file: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(seedDir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatalf("writing decoy file: %v", err)
	}

	stats, err := ingestor.LoadSeedImages(ctx, seedDir, SeedOptions{})
	if err != nil {
		t.Fatalf("seed load failed: %v", err)
	}
	if stats.Loaded != 2 || stats.Skipped != 0 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 2 loaded", stats)
	}
	var count int64
	if err := db.Model(&database.Image{}).Where("is_seed = ?", true).Count(&count).Error; err != nil {
		t.Fatalf("counting seed rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("found %d seed rows, want 2", count)
	}

	// a second run over the same directory only skips duplicates
	stats, err = ingestor.LoadSeedImages(ctx, seedDir, SeedOptions{SkipExisting: true})
	if err != nil {
		t.Fatalf("second seed load failed: %v", err)
	}
	if stats.Loaded != 0 || stats.Skipped != 2 {
		t.Fatalf("stats = %+v, want 2 skipped", stats)
	}
}

func TestLoadSeedImagesMissingDir(t *testing.T) {
	ingestor, _, _ := newTestIngestor(t)
	if _, err := ingestor.LoadSeedImages(context.Background(), filepath.Join(t.TempDir(), "absent"), SeedOptions{}); err == nil {
		t.Fatal("expected an error for a missing seed directory")
	}
}

func TestBulkExtract(t *testing.T) {
	ingestor, db, static := newTestIngestor(t)
	ctx := context.Background()

	good, err := ingestor.IngestBytes(ctx, pngBytes(t, 4, 4, color.RGBA{R: 20, A: 255}), "good.png", "good", true)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	bad, err := ingestor.IngestBytes(ctx, pngBytes(t, 4, 4, color.RGBA{G: 20, A: 255}), "bad.png", "bad", true)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	static.Register(good.FilePath, []float32{0, 1, 0, 0})
	// bad's file vanishes between ingest and extraction
	if err := os.Remove(bad.FilePath); err != nil {
		t.Fatalf("removing file: %v", err)
	}

	stats, err := ingestor.BulkExtract(ctx, BulkExtractOptions{})
	if err != nil {
		t.Fatalf("bulk extraction failed: %v", err)
	}
	if stats.Processed != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want 1 processed and 1 failed", stats)
	}

	loaded, err := db.ImageByID(ctx, good.ID)
	if err != nil {
		t.Fatalf("loading image: %v", err)
	}
	if !loaded.FeaturesExtracted {
		t.Error("extracted image not flagged searchable")
	}
	failed, err := db.ImageByID(ctx, bad.ID)
	if err != nil {
		t.Fatalf("loading image: %v", err)
	}
	if failed.FeaturesExtracted || failed.ProcessingError == "" {
		t.Errorf("missing-file failure not recorded: extracted=%v error=%q",
			failed.FeaturesExtracted, failed.ProcessingError)
	}

	// nothing pending on a second run
	stats, err = ingestor.BulkExtract(ctx, BulkExtractOptions{})
	if err != nil {
		t.Fatalf("second bulk extraction failed: %v", err)
	}
	if stats.Processed != 0 {
		t.Fatalf("second run processed %d images, want 0", stats.Processed)
	}
}

func TestBulkExtractCancelled(t *testing.T) {
	ingestor, _, _ := newTestIngestor(t)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := ingestor.IngestBytes(ctx, pngBytes(t, 4, 4, color.RGBA{B: 20, A: 255}), "pic.png", "pic", false); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	cancel()
	if _, err := ingestor.BulkExtract(ctx, BulkExtractOptions{}); err == nil {
		t.Fatal("expected cancellation to abort the run")
	}
}
