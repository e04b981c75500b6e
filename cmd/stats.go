package cmd

import (
	"github.com/spf13/cobra"

	"lastsold-monitor/services"
	"lastsold-monitor/storage"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print statistics over every sale recorded so far.",
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

		svc := services.NewInsightService(logger)
		svc.Print(cmd.OutOrStdout(), svc.Generate(entries))
		return nil
	},
}
