package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/extractor"
	"github.com/expki/go-imagesearch/ingest"
	"github.com/spf13/cobra"
)

var (
	seedClear        bool
	seedSkipExisting bool
	seedLimit        int
)

var seedCmd = &cobra.Command{
	Use:   "seed <directory>",
	Short: "Load seed images from a directory",
	Long: `Loads every jpg/jpeg/png file in the directory into the store as seed
images. Loading records the rows only; run "extract" afterwards to make
them searchable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// seed loading touches no model; a stub extractor keeps it light
		stub := extractor.NewStatic(cfg.Extractor.Model, cfg.Extractor.VectorSize)
		ingestor := ingest.New(db, stub, cfg.Server.UploadDir)
		stats, err := ingestor.LoadSeedImages(ctx, args[0], ingest.SeedOptions{
			Clear:        seedClear,
			SkipExisting: seedSkipExisting,
			Limit:        seedLimit,
		})
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d images, %d skipped, %d failed\n", stats.Loaded, stats.Skipped, stats.Failed)
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedClear, "clear", false, "clear existing seed images before loading")
	seedCmd.Flags().BoolVar(&seedSkipExisting, "skip-existing", false, "skip images that already exist")
	seedCmd.Flags().IntVar(&seedLimit, "limit", 0, "limit number of images to load")
	rootCmd.AddCommand(seedCmd)
}
