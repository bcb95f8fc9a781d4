// cmd/cctvd/root.go
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cctvd",
	Short: "CCTV fleet health monitoring and maintenance workflow service",
	Long: `cctvd probes every camera in the fleet on a fixed interval, tracks
maintenance requests from creation to verification and pushes updates to
connected operators over websocket.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(config.LoadDotEnv)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Configuration file path")
}

// loadConfig reads the configuration and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg.Logging)
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}
