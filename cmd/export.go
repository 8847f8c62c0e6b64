package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/adapters/submit"
	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/usecase"
)

func exportCmd(projectRoot *string) *cobra.Command {
	var (
		sessionID string
		outDir    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored session results as CSV and JSON",
		Long: `Export writes <session>.csv and <session>.json for one session, or for
every completed session when --session is not given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return export(cmd.Context(), *projectRoot, sessionID, outDir)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to export (default: all completed sessions)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "export", "Output directory")

	return cmd
}

func export(ctx context.Context, projectRoot, sessionID, outDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, exp, logger, err := bootstrap(projectRoot)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sessions, closeStore, err := openSessionStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var targets []*entities.Session
	if sessionID != "" {
		session, err := sessions.GetByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("session %s: %w", sessionID, err)
		}
		targets = append(targets, session)
	} else {
		targets, err = sessions.ListByStatus(ctx, entities.SessionStatusCompleted)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
	}

	recorder := usecase.NewRecorder(sessions, exp.TypeLabels)
	writer := submit.NewFileSubmitter(outDir, logger)

	for _, session := range targets {
		replayable := false
		if variant, err := exp.Variant(session.Variant); err == nil {
			replayable = variant.HasReplay
		} else {
			logger.Warn("Unknown variant, exporting without ReplayCount",
				zap.String("sessionID", session.ID),
				zap.String("variant", session.Variant))
		}

		if err := writer.Submit(ctx, recorder.Results(session, replayable)); err != nil {
			return fmt.Errorf("export %s: %w", session.ID, err)
		}
	}

	logger.Info("Export finished", zap.Int("sessions", len(targets)), zap.String("dir", outDir))
	return nil
}
