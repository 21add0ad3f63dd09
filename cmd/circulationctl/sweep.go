package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/circulation/components"
	"github.com/library-circulation/internal/circulation/sweeper"
	"github.com/library-circulation/internal/config"
	"github.com/library-circulation/internal/data/mongo"
	"github.com/library-circulation/internal/data/postgres"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/logger"
	"github.com/library-circulation/internal/platform/persistence"
	"github.com/spf13/cobra"
)

// lifecycleSweeper is the part of *sweeper.Sweeper the command drives
type lifecycleSweeper interface {
	SweepOnce(ctx context.Context, steps ...sweeper.Step) *sweeper.Report
	Preview(ctx context.Context, steps ...sweeper.Step) (*sweeper.Preview, error)
}

// openSweeperFunc builds a sweeper from the named config and returns a
// cleanup that releases every connection it opened
type openSweeperFunc func(ctx context.Context, configName string) (lifecycleSweeper, func(), error)

func newSweepCmd(open openSweeperFunc) *cobra.Command {
	var (
		dryRun bool
		only   string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one lifecycle pass: overdue flags, fine refresh, pickup and hold expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, err := sweeper.ParseSteps(only)
			if err != nil {
				return err
			}
			configName, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			sw, cleanup, err := open(cmd.Context(), configName)
			if err != nil {
				return err
			}
			defer cleanup()

			return runSweep(cmd.Context(), cmd.OutOrStdout(), sw, dryRun, steps)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the records a pass would touch without changing them")
	cmd.Flags().StringVar(&only, "only", "", "comma separated steps to run: overdue, pickups, holds (default all)")
	return cmd
}

func runSweep(ctx context.Context, out io.Writer, sw lifecycleSweeper, dryRun bool, steps []sweeper.Step) error {
	if dryRun {
		preview, err := sw.Preview(ctx, steps...)
		if err != nil {
			return fmt.Errorf("dry run failed: %w", err)
		}
		for _, step := range steps {
			switch step {
			case sweeper.StepOverdue:
				printIDs(out, "loans to flag overdue", preview.OverdueCandidates)
				printIDs(out, "overdue loans to refresh", preview.OverdueLoans)
			case sweeper.StepPickups:
				printIDs(out, "pickup codes to expire", preview.ExpiredPickups)
			case sweeper.StepHolds:
				printIDs(out, "holds to expire", preview.LapsedHolds)
			}
		}
		return nil
	}

	report := sw.SweepOnce(ctx, steps...)
	fmt.Fprintf(out, "loans flagged overdue: %d\n", report.LoansFlaggedOverdue)
	fmt.Fprintf(out, "fines refreshed:       %d\n", report.FinesRefreshed)
	fmt.Fprintf(out, "pickups expired:       %d\n", report.PickupsExpired)
	fmt.Fprintf(out, "holds expired:         %d\n", report.HoldsExpired)
	if report.Failed > 0 {
		return fmt.Errorf("%d records failed, see logs", report.Failed)
	}
	return nil
}

func printIDs(out io.Writer, label string, ids []uuid.UUID) {
	fmt.Fprintf(out, "%s: %d\n", label, len(ids))
	for _, id := range ids {
		fmt.Fprintf(out, "  %s\n", id)
	}
}

// openSweeper connects to PostgreSQL and MongoDB the same way the worker does
func openSweeper(ctx context.Context, configName string) (lifecycleSweeper, func(), error) {
	cfg, err := config.LoadConfig(configName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.NewLogger(cfg)

	postgresDB, err := persistence.Connect(ctx, log, &cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	mongoDB, err := persistence.NewMongoDB(ctx, log, &cfg.MongoDB)
	if err != nil {
		postgresDB.Close()
		return nil, nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
	}

	cleanupDBs := func() {
		postgresDB.Close()
		if err := mongoDB.Close(context.Background()); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	}

	svc, err := components.CreateCirculationService(
		postgresDB,
		components.NewPostgresRepositories(log, postgresDB),
		mongo.NewTimelineRepository(log, mongoDB.Timeline()),
		postgres.NewOutboxRepository(log, postgresDB),
		shared.SystemClock{},
		log,
		cfg,
	)
	if err != nil {
		cleanupDBs()
		return nil, nil, err
	}

	sw, err := sweeper.NewSweeper(svc, sweeper.Config{
		Interval:  cfg.Sweeper.Interval,
		BatchSize: cfg.Sweeper.BatchSize,
		PoolSize:  cfg.WorkerPool.Size,
	}, log.With(slog.String("component", "sweeper")))
	if err != nil {
		cleanupDBs()
		return nil, nil, err
	}

	return sw, func() {
		sw.Shutdown()
		cleanupDBs()
	}, nil
}
