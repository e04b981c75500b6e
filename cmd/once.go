package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(onceCmd)
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single polling cycle over every target and exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		summary := a.poller.RunOnce(ctx)

		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.AppendHeader(table.Row{"Target", "Rows", "Extracted", "Skipped", "Seen", "New", "Alerted", "Filtered", "Error"})
		for _, target := range cfg.Targets {
			if ferr, failed := summary.Failures[target]; failed {
				tw.AppendRow(table.Row{target, "", "", "", "", "", "", "", ferr.Error()})
			}
		}
		for _, r := range summary.Results {
			tw.AppendRow(table.Row{r.Target, r.Candidates, r.Extracted, r.ExtractionErrors, r.AlreadySeen, r.New, r.Notified, r.Filtered, ""})
		}
		tw.SetStyle(table.StyleRounded)
		tw.Render()

		if len(summary.Failures) == len(cfg.Targets) {
			return fmt.Errorf("all %d targets failed", len(cfg.Targets))
		}
		return nil
	},
}
