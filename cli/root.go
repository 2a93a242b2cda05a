// Package cli wires the imagesearch commands: serving the API, loading seed
// images and running bulk feature extraction.
package cli

import (
	"fmt"
	"os"

	"github.com/expki/go-imagesearch/config"
	"github.com/expki/go-imagesearch/database"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/extractor"
	"github.com/expki/go-imagesearch/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "imagesearch",
	Short: "Reverse image search over a stored embedding corpus",
	Long: `imagesearch indexes images as fixed-length feature vectors produced by a
pretrained convolutional backbone and finds visually similar images ranked
by cosine similarity.

Example usage:
  imagesearch sample-config               # Write a starter config file
  imagesearch seed ./data/seed_images     # Load the seed corpus
  imagesearch extract                     # Extract features for pending images
  imagesearch serve                       # Serve the search API`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "sample-config" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger.Initialize(cfg.LogLevel.Zap())
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "./config.json", "config file")
}

func openDatabase() (*database.Database, error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func openExtractor() (*extractor.ResNet, error) {
	ex, err := extractor.NewResNet(cfg.Extractor)
	if err != nil {
		return nil, fmt.Errorf("failed to load extraction model: %w", err)
	}
	return ex, nil
}
