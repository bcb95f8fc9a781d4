// cmd/cctvd/scan.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Probe the fleet once, persist status changes and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.engine.RunOnce(context.Background())
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		if scanJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		fmt.Printf("Probed %d cameras in %s: %d up, %d down\n",
			len(report.Results), report.Duration, report.SuccessCount, report.FailureCount)
		for _, change := range report.Changes {
			fmt.Printf("  %s: %s -> %s\n", change.CameraID, change.PreviousStatus, change.NewStatus)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the scan report as JSON")
	rootCmd.AddCommand(scanCmd)
}
