package cli

import (
	"os/signal"
	"syscall"

	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/logger"
	"github.com/expki/go-imagesearch/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API",
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

		logger.Sugar().Infof("serving with model %s (%d dimensions)", ex.ModelName(), ex.Dimensions())
		return server.New(cfg, db, ex).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
