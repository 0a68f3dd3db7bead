package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/config"
	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/logging"
	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/server"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/paths"
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the HTTP server (default)",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads .env files and the environment, applies flag overrides
// and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, []string, error) {
	loaded, err := config.LoadEnvFiles(paths.EnvFiles()...)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Root().PersistentFlags()
	if flags.Changed("root") {
		cfg.Sandbox.Root = rootFlag
	}
	if flags.Changed("port") {
		cfg.Server.Port = portFlag
	}
	if flags.Changed("host") {
		cfg.Server.Host = hostFlag
	}
	if flags.Changed("metadata-dsn") {
		cfg.Audit.DSN = dsnFlag
	}
	if devFlag {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, loaded, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, envFiles, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	for _, f := range envFiles {
		logger.Info("Loaded environment file", zap.String("path", f))
	}

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Error("Startup failed", zap.Error(err))
		logger.Sync()
		return err
	}

	pidFile := paths.PIDFile()
	if err := paths.WritePID(pidFile); err != nil {
		logger.Warn("Could not write PID file", zap.String("path", pidFile), zap.Error(err))
	}
	defer paths.RemovePID(pidFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	return nil
}
