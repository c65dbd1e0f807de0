package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chunkerbatch/chunkerbatch/internal/config"
	"github.com/chunkerbatch/chunkerbatch/internal/observability"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	rootCmd = &cobra.Command{
		Use:   "chunkerbatch",
		Short: "Batch Minecraft world conversion via the Chunker CLI",
		Long: `chunkerbatch batch-converts Minecraft world directories between Java and
Bedrock editions by driving the external Chunker CLI jar, one world at a
time. It scans input directories for convertible worlds, streams converter
progress, and records run history.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// newLogger builds the CLI logger, with flags overriding the config file
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := cfg.Logging
	if logLevel != "" {
		lc.Level = logLevel
	}
	if logFormat != "" {
		lc.Format = logFormat
	}
	return observability.NewLogger(lc)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
