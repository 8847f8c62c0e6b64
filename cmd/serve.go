package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/lextale/adapters/stimuli"
	"github.com/satriahrh/lextale/adapters/submit"
	"github.com/satriahrh/lextale/internal/api"
	"github.com/satriahrh/lextale/internal/auth"
	"github.com/satriahrh/lextale/internal/websocket"
	"github.com/satriahrh/lextale/usecase"
)

func serveCmd(projectRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*projectRoot)
		},
	}
}

func serve(projectRoot string) error {
	cfg, exp, logger, err := bootstrap(projectRoot)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A malformed stimulus table refuses to start the server
	rows, err := stimuli.NewCSVSource(cfg.Experiment.StimuliPath, cfg.Experiment.SortByOrder, logger).Load(ctx)
	if err != nil {
		return fmt.Errorf("load stimuli: %w", err)
	}

	sessions, closeStore, err := openSessionStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	// Initialize usecase services
	recorder := usecase.NewRecorder(sessions, exp.TypeLabels)
	calibrator := usecase.NewCalibrator(usecase.CalibratorConfig{
		ToneAsset:       cfg.Experiment.ToneAsset,
		PlaybackTimeout: cfg.Timing.PlaybackTimeout,
		MaxAttempts:     cfg.Timing.CalibrationAttempts,
	})
	trials := usecase.NewTrialController(usecase.TrialConfig{
		PlaybackTimeout: cfg.Timing.PlaybackTimeout,
		ResponseTimeout: cfg.Timing.ResponseTimeout,
	}, recorder)
	experiment := usecase.NewExperimentService(usecase.ExperimentConfig{
		ToneAsset:         cfg.Experiment.ToneAsset,
		InstructionsAsset: cfg.Experiment.InstructionsAsset,
		PreloadTimeout:    cfg.Timing.PreloadTimeout,
	}, sessions, submit.NewFileSubmitter(cfg.Results.Directory, logger), calibrator, trials, recorder, rows, logger)

	clk := clock.New()
	hub := websocket.NewHub(sessions, experiment, exp, clk, logger)
	cleanup := websocket.NewSessionCleanupService(sessions, hub, cfg.Sessions.IdleTimeout, cfg.Sessions.CleanupInterval, clk, logger)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Dependencies{
		Sessions:   sessions,
		Variants:   exp,
		Recorder:   recorder,
		Tokens:     tokens,
		WebSocket:  hub,
		SessionTTL: cfg.Sessions.TTL,
		AssetsDir:  cfg.Server.AssetsDir,
		Clock:      clk,
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server started",
			zap.String("port", cfg.Server.Port),
			zap.Int("stimuli", len(rows)),
			zap.Int("variants", len(exp.Variants)))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return cleanup.Run(gctx)
	})

	// Wait for interrupt signal to gracefully shutdown the server
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		if err := hub.Shutdown(shutdownCtx); err != nil {
			logger.Error("Sessions still running at shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server exited")
	return nil
}
