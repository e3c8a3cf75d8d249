package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	libdb "swapstation/backend/libs/db"
	"swapstation/backend/libs/logging"
	"swapstation/backend/services/reservation-service/internal/app"
	"swapstation/backend/services/reservation-service/internal/config"
	"swapstation/backend/services/reservation-service/internal/repository"
)

const serviceName = "reservation-service"

var cfgPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Battery swap reservation service",
		SilenceUsage: true,
		RunE:         serve,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML configuration file (overrides CONFIG_FILE)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the reservation HTTP API",
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the reservation tables",
		RunE:  migrate,
	})
	return root
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		if err := os.Setenv("CONFIG_FILE", cfgPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(serviceName)
	if err != nil {
		return err
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to init reservation service", zap.Error(err))
		return err
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reservation service stopped with error", zap.Error(err))
		return err
	}
	return nil
}

func migrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(serviceName)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := libdb.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	if err := libdb.ApplySchema(ctx, db, repository.Schema); err != nil {
		return err
	}
	logger.Info("schema applied", zap.Int("statements", len(repository.Schema)))
	return nil
}
