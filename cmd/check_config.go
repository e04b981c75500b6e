package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"lastsold-monitor/scraper/tcgplayer"
)

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and show the effective settings.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		f := cfg.Filters()
		minPrice, maxPrice := "-", "-"
		if f.MinPrice != nil {
			minPrice = "$" + f.MinPrice.StringFixed(2)
		}
		if f.MaxPrice != nil {
			maxPrice = "$" + f.MaxPrice.StringFixed(2)
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.SetTitle("Effective configuration")
		tw.AppendRows([]table.Row{
			{"Interval", cfg.Interval()},
			{"Storage", cfg.StoragePath},
			{"Min price", minPrice},
			{"Max price", maxPrice},
			{"Min condition", orDash(cfg.MinCondition)},
			{"Webhook", cfg.WebhookURL != ""},
			{"Email", cfg.Email.Enabled},
			{"Graph capture", fmt.Sprintf("%v (%s)", cfg.GraphCapture.Enabled, cfg.GraphCapture.Schedule)},
		})
		tw.AppendSeparator()
		for i, t := range cfg.Targets {
			tw.AppendRow(table.Row{fmt.Sprintf("Target %d", i+1), tcgplayer.CardNameFromURL(t) + "  " + t})
		}
		tw.SetStyle(table.StyleRounded)
		tw.Render()
		fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
