package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gmsas95/vetscan/internal/app"
	"github.com/gmsas95/vetscan/internal/config"
)

var version = "dev"

var (
	configPath string
	dataDir    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "vetscan",
		Short:         "Veterinary prescription analysis and diet recommendations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "Path to data directory")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(contactsCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initApp loads configuration and builds the application. The returned
// cleanup flushes the logger.
func initApp() (*app.App, func(), error) {
	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, level, err := app.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	application, err := app.New(cfg, logger, level, version)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}
	return application, func() { _ = logger.Sync() }, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cleanup, err := initApp()
			if err != nil {
				return err
			}
			defer cleanup()

			application.Logger.Info("Starting vetscan",
				zap.String("version", version),
				zap.String("data_dir", application.Config.Storage.DataDir),
			)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return application.RunServer(ctx)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vetscan version %s\n", version)
		},
	}
}
