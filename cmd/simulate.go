package main

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/internal/participant"
)

func simulateCmd() *cobra.Command {
	var (
		opts    participant.Options
		random  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted participant against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if random {
				opts.Answer = func(int) entities.Option {
					if rand.Intn(2) == 0 {
						return entities.OptionNo
					}
					return entities.OptionYes
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			result, err := participant.NewBot(opts, logger).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s %s after %d trials\n", result.SessionID, result.Status, result.Trials)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "url", "http://localhost:8080", "Server base URL")
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "Variant name (default: server default)")
	cmd.Flags().StringVar(&opts.Subject, "subject", "sim", "Subject id to enter")
	cmd.Flags().IntVar(&opts.ReplaysPerTrial, "replays", 0, "Replays to request per trial when offered")
	cmd.Flags().BoolVar(&random, "random", false, "Answer at random instead of always yes")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up after this long")

	return cmd
}
