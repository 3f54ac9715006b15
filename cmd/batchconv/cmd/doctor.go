package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"media-converter/internal/diagnostics"
)

var errDiagnosticsFailed = errors.New("one or more checks failed")

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg, the output directory and memory are ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := currentSettings()
		report := diagnostics.NewChecker(viper.GetString("ffmpeg")).Run(settings)

		if IsJSONOutput() {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Check", "Status", "Details", "Hint")
			for _, item := range report.Items {
				hint := item.Hint
				if hint == "" {
					hint = "-"
				}
				_ = table.Append(item.Name, string(item.Status), item.Message, hint)
			}
			if err := table.Render(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}

		if report.HasFailures {
			return errDiagnosticsFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
