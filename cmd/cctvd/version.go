// cmd/cctvd/version.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/owl29bd/cctv-automation-backend/internal/web"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := web.CurrentBuildInfo()
		fmt.Printf("cctvd %s\nCommit: %s\nBuilt: %s\nGo: %s %s/%s\n",
			info.Version, info.GitCommit, info.BuildTime, info.GoVersion, info.GoOS, info.GoArch)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
