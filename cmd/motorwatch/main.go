package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/motorwatch/motorwatch/internal/config"
)

const (
	appName = "motorwatch"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	var configPath string
	var addr string
	var logLevel string
	var pretty bool

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Online condition monitoring for rotating industrial assets",
		Version: version,
		Long: `motorwatch ingests 100 Hz electrical and vibration telemetry, learns a
per-asset healthy baseline, scores incoming windows with an isolation
forest (with a range-check fallback), and serves health assessments,
condition events and lifecycle controls over HTTP.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring engine and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if pretty {
				cfg.Log.Pretty = true
			}
			setupLogging(cfg.Log)
			return runServe(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address override (e.g. :8080)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (trace|debug|info|warn|error)")
	serveCmd.Flags().BoolVar(&pretty, "pretty", false, "Human-readable console logging")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
