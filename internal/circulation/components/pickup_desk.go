package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/circulation/service"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/pickup"
	"github.com/library-circulation/internal/logger"
)

// ErrCodeSpaceExhausted is returned when every generated value collided
var ErrCodeSpaceExhausted = errors.New("could not generate a unique pickup code")

type PickupDeskConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// PickupDeskImpl issues codes that are unique among active codes and checks them at the desk
type PickupDeskImpl struct {
	codeRepo  pickup.Repository
	generator pickup.Generator
	cfg       PickupDeskConfig
	logger    *slog.Logger
}

func NewPickupDesk(codeRepo pickup.Repository, generator pickup.Generator, cfg PickupDeskConfig, logger *slog.Logger) service.PickupDesk {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &PickupDeskImpl{
		codeRepo:  codeRepo,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Issue draws values until one is free, giving up after MaxAttempts draws
func (d *PickupDeskImpl) Issue(ctx context.Context, tx pgx.Tx, l *loan.Loan, now time.Time) (*pickup.Code, error) {
	logger := logger.FromContext(ctx, d.logger)
	codeRepoTx := d.codeRepo.WithTx(tx)

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		value, err := d.generator.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate pickup code: %w", err)
		}

		taken, err := codeRepoTx.ExistsActive(ctx, value)
		if err != nil {
			return nil, err
		}
		if taken {
			logger.Warn("Pickup code collision, drawing again", "loan_id", l.ID.String(), "attempt", attempt)
			continue
		}

		code := pickup.NewCode(l.ID, value, now, d.cfg.TTL)
		if err := codeRepoTx.Create(ctx, code); err != nil {
			return nil, err
		}
		logger.Info("Pickup code issued", "loan_id", l.ID.String(), "expires_at", code.ExpiresAt)
		return code, nil
	}

	logger.Error("Pickup code generation exhausted", "loan_id", l.ID.String(), "attempts", d.cfg.MaxAttempts)
	return nil, fmt.Errorf("loan %s after %d attempts: %w", l.ID, d.cfg.MaxAttempts, ErrCodeSpaceExhausted)
}

// Redeem checks a presented value against the loan's active code. A loan
// without an active code always gets pickup.ResultInvalid.
func (d *PickupDeskImpl) Redeem(ctx context.Context, tx pgx.Tx, l *loan.Loan, presented string, now time.Time) (pickup.Result, error) {
	codeRepoTx := d.codeRepo.WithTx(tx)

	code, err := codeRepoTx.GetActiveByLoan(ctx, l.ID)
	if err != nil {
		return pickup.ResultInvalid, err
	}
	if code == nil || l.Status != loan.StatusApproved {
		return pickup.ResultInvalid, nil
	}

	result := code.Redeem(presented, l.ID, now)
	if result == pickup.ResultInvalid {
		logger.FromContext(ctx, d.logger).Warn("Invalid pickup code presented", "loan_id", l.ID.String())
		return result, nil
	}
	if err := codeRepoTx.Update(ctx, code); err != nil {
		return pickup.ResultInvalid, err
	}
	return result, nil
}

func (d *PickupDeskImpl) Expire(ctx context.Context, tx pgx.Tx, loanID uuid.UUID, now time.Time) (bool, error) {
	return d.close(ctx, tx, loanID, now, true)
}

func (d *PickupDeskImpl) Void(ctx context.Context, tx pgx.Tx, loanID uuid.UUID, now time.Time) (bool, error) {
	return d.close(ctx, tx, loanID, now, false)
}

func (d *PickupDeskImpl) close(ctx context.Context, tx pgx.Tx, loanID uuid.UUID, now time.Time, onlyPastExpiry bool) (bool, error) {
	codeRepoTx := d.codeRepo.WithTx(tx)

	code, err := codeRepoTx.GetActiveByLoan(ctx, loanID)
	if err != nil || code == nil {
		return false, err
	}
	if onlyPastExpiry && !code.PastExpiry(now) {
		return false, nil
	}
	if !code.Expire(now) {
		return false, nil
	}
	if err := codeRepoTx.Update(ctx, code); err != nil {
		return false, err
	}
	return true, nil
}
