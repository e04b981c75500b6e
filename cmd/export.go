package cmd

import (
	"github.com/spf13/cobra"

	"lastsold-monitor/storage"
)

var exportOut string

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "CSV file to write, - for stdout")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [--out sales.csv]",
	Short: "Export every recorded sale as CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := storage.Open(cmd.Context(), cfg.StoragePath, logger)
		if err != nil {
			return err
		}
		defer store.Close(cmd.Context())

		entries, err := store.Entries()
		if err != nil {
			return err
		}

		var w *storage.CSVWriter
		if exportOut == "-" {
			w, err = storage.NewCSVStreamWriter(cmd.OutOrStdout())
		} else {
			w, err = storage.NewCSVWriter(exportOut)
		}
		if err != nil {
			return err
		}
		if err := w.Export(entries); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		if exportOut != "-" {
			logger.Info("Exported %d sales to %s", len(entries), exportOut)
		}
		return nil
	},
}
