package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JeanGrijp/csrfguard/internal/config"
	"github.com/JeanGrijp/csrfguard/internal/server"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

var (
	configFile string
	noColor    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "csrfguard",
		Short:         "CSRF-protected demo server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (YAML)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return reportErr(cmd, err)
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return reportErr(cmd, err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg, logger)
			if err != nil {
				logger.Error("server init failed", zap.Error(err))
				return err
			}
			defer func() {
				if err := srv.Close(); err != nil {
					logger.Warn("storage close failed", zap.Error(err))
				}
			}()

			logger.Info("csrfguard starting",
				zap.String("version", version),
				zap.String("env", cfg.Env),
				zap.String("storage", cfg.Storage.Backend),
				zap.Bool("sessions", cfg.CSRF.Sessions),
			)
			return srv.Run(ctx)
		},
	}
}

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				errorColor.Fprintf(cmd.ErrOrStderr(), "✗ %v\n", err)
				return err
			}
			successColor.Fprintln(cmd.OutOrStdout(), "✓ configuration is valid")
			infoColor.Fprintf(cmd.OutOrStdout(), "  addr:     %s\n", cfg.HTTP.Addr)
			infoColor.Fprintf(cmd.OutOrStdout(), "  storage:  %s\n", cfg.Storage.Backend)
			infoColor.Fprintf(cmd.OutOrStdout(), "  sessions: %t\n", cfg.CSRF.Sessions)
			return nil
		},
	})
	return cfgCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// reportErr prints err to stderr and returns it. Errors are silenced at the
// root so they are not printed twice.
func reportErr(cmd *cobra.Command, err error) error {
	errorColor.Fprintln(cmd.ErrOrStderr(), err)
	return err
}

// newLogger builds a JSON logger in prod and a console logger elsewhere.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewDevelopmentConfig()
	if cfg.Env == "prod" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

