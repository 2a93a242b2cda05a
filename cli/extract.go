package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/ingest"
	"github.com/spf13/cobra"
)

var (
	extractBatchSize int
	extractReextract bool
	extractSeedOnly  bool
	extractLimit     int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract features for stored images",
	Long: `Runs the extraction model over every stored image that has no features
yet, sequentially in small groups. Per-image failures are recorded on the
image and skipped; rerun after fixing the cause. Only one extraction run
may be active at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		ex, err := openExtractor()
		if err != nil {
			return err
		}
		defer ex.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ingestor := ingest.New(db, ex, cfg.Server.UploadDir)
		stats, err := ingestor.BulkExtract(ctx, ingest.BulkExtractOptions{
			SeedOnly:  extractSeedOnly,
			Reextract: extractReextract,
			Limit:     extractLimit,
			BatchSize: extractBatchSize,
		})
		if err != nil {
			return err
		}
		fmt.Printf("processed %d images, %d failed (%s)\n", stats.Processed, stats.Failed, stats.Elapsed)
		return nil
	},
}

func init() {
	extractCmd.Flags().IntVar(&extractBatchSize, "batch-size", 0, "progress group size")
	extractCmd.Flags().BoolVar(&extractReextract, "reextract", false, "re-extract features for images that already have features")
	extractCmd.Flags().BoolVar(&extractSeedOnly, "seed-only", false, "only process seed images")
	extractCmd.Flags().IntVar(&extractLimit, "limit", 0, "limit number of images to process")
	rootCmd.AddCommand(extractCmd)
}
