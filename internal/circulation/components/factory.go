package components

import (
	"fmt"
	"log/slog"

	"github.com/library-circulation/internal/circulation/service"
	"github.com/library-circulation/internal/config"
	"github.com/library-circulation/internal/data/postgres"
	"github.com/library-circulation/internal/domain/outbox"
	"github.com/library-circulation/internal/domain/pickup"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/domain/timeline"
	"github.com/library-circulation/internal/platform/persistence"
)

// NewPostgresRepositories builds every circulation repository on one pool
func NewPostgresRepositories(logger *slog.Logger, db *persistence.PostgresDB) service.Repositories {
	return service.Repositories{
		Loans:        postgres.NewLoanRepository(logger, db),
		Extensions:   postgres.NewExtensionRepository(logger, db),
		Reservations: postgres.NewReservationRepository(logger, db),
		Fines:        postgres.NewFineRepository(logger, db),
		Catalog:      postgres.NewCatalogRepository(logger, db),
		PickupCodes:  postgres.NewPickupCodeRepository(logger, db),
	}
}

// CreateCirculationService wires the circulation service with its components
func CreateCirculationService(
	db persistence.Transactor,
	repos service.Repositories,
	timelineRepo timeline.Repository,
	outboxRepo outbox.Repository,
	clock shared.Clock,
	logger *slog.Logger,
	cfg *config.Config,
) (*service.CirculationService, error) {
	rules := cfg.Circulation

	generator, err := pickup.NewRandomGenerator(rules.PickupCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create pickup code generator: %w", err)
	}

	components := service.Components{
		Ledger: NewAvailabilityLedger(
			repos.Loans,
			repos.Reservations,
			repos.Catalog,
			rules.HoldWindow,
			logger.With("component", "availability_ledger"),
		),
		Desk: NewPickupDesk(
			repos.PickupCodes,
			generator,
			PickupDeskConfig{TTL: rules.PickupCodeTTL, MaxAttempts: rules.MaxCodeGenAttempts},
			logger.With("component", "pickup_desk"),
		),
		Assessor: NewFineAssessor(repos.Fines, logger.With("component", "fine_assessor")),
		Recorder: NewEventRecorder(outboxRepo, logger.With("component", "event_recorder")),
	}

	logger.Info("Created circulation service",
		"loan_period_days", rules.LoanPeriodDays,
		"hold_window", rules.HoldWindow.String(),
		"pickup_code_ttl", rules.PickupCodeTTL.String(),
	)
	return service.NewCirculationService(db, repos, timelineRepo, components, clock, rules, logger), nil
}
