// Package main provides the lextale server binary.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/adapters"
	"github.com/satriahrh/lextale/adapters/mongo"
	"github.com/satriahrh/lextale/config"
	"github.com/satriahrh/lextale/domain/repositories"
	"github.com/satriahrh/lextale/internal/logging"
)

const (
	Version = "0.1.0"
	appName = "lextale"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var projectRoot string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Auditory lexical decision test server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "Project root holding config/ and .env")

	cmd.AddCommand(serveCmd(&projectRoot))
	cmd.AddCommand(exportCmd(&projectRoot))
	cmd.AddCommand(simulateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

// bootstrap loads configuration, the experiment definition and the logger
func bootstrap(projectRoot string) (*config.Config, *config.Experiment, *zap.Logger, error) {
	cfg, err := config.Load(projectRoot)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}

	exp, err := config.LoadExperiment(cfg.Experiment.VariantsFile)
	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, exp, logger, nil
}

// openSessionStore connects to MongoDB when configured and falls back to
// memory otherwise. The returned func releases the store.
func openSessionStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (repositories.SessionRepository, func(), error) {
	if cfg.MongoURI == "" {
		logger.Warn("No MongoDB URI configured, sessions are kept in memory")
		return adapters.NewMemorySessionRepository(), func() {}, nil
	}

	store, err := mongo.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	repo := store.Sessions()
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = store.Close(context.Background())
		return nil, nil, err
	}

	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(ctx)
	}
	return repo, closeFn, nil
}
