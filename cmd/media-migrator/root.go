package main

import (
	"github.com/flowbot/media-migrator/internal/config"
	"github.com/flowbot/media-migrator/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// exitCode is set by commands that finish without error but still need a
// non-zero status.
var exitCode int

var rootCmd = &cobra.Command{
	Use:          "media-migrator",
	Short:        "Move flow media to a new blob store and register it as reusable attachments.",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(mappingsCmd)
}

// setup loads the configuration and installs the global logger. The returned
// func flushes and restores the previous logger.
func setup() (*config.Config, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel))
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
