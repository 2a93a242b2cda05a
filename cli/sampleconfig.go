package cli

import (
	"fmt"

	"github.com/expki/go-imagesearch/config"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/spf13/cobra"
)

var sampleConfigCmd = &cobra.Command{
	Use:   "sample-config",
	Short: "Write a sample configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.CreateSample(cfgFile); err != nil {
			return err
		}
		fmt.Printf("sample configuration written to %s\n", cfgFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sampleConfigCmd)
}
