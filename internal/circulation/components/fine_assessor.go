package components

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/circulation/service"
	"github.com/library-circulation/internal/domain/fine"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/logger"
)

// FineAssessorImpl keeps one fine row per loan and reason, recomputing the
// overdue fine in place as days accrue
type FineAssessorImpl struct {
	fineRepo fine.Repository
	logger   *slog.Logger
}

func NewFineAssessor(fineRepo fine.Repository, logger *slog.Logger) service.FineAssessor {
	return &FineAssessorImpl{
		fineRepo: fineRepo,
		logger:   logger,
	}
}

// AssessOverdue creates or refreshes the loan's overdue fine. A loan that is
// not late, or whose fine was already paid, is left alone.
func (a *FineAssessorImpl) AssessOverdue(ctx context.Context, tx pgx.Tx, l *loan.Loan, now time.Time) (*fine.Fine, bool, error) {
	fineRepoTx := a.fineRepo.WithTx(tx)
	days := l.DaysOverdue(now)

	existing, err := fineRepoTx.GetByLoanAndReason(ctx, l.ID, fine.ReasonOverdue)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load overdue fine for loan %s: %w", l.ID, err)
	}

	if existing == nil {
		f, err := fine.NewOverdueFine(l.ID, days, now)
		if err != nil || f == nil {
			return nil, false, err
		}
		if err := fineRepoTx.Create(ctx, f); err != nil {
			return nil, false, fmt.Errorf("failed to create overdue fine for loan %s: %w", l.ID, err)
		}
		logger.FromContext(ctx, a.logger).Info("Overdue fine assessed",
			"loan_id", l.ID.String(),
			"days_overdue", days,
			"amount", f.Amount(),
		)
		return f, true, nil
	}

	changed, err := existing.Reassess(days, now)
	if err != nil || !changed {
		return existing, false, err
	}
	if err := fineRepoTx.Update(ctx, existing); err != nil {
		return nil, false, fmt.Errorf("failed to update overdue fine %s: %w", existing.ID, err)
	}
	logger.FromContext(ctx, a.logger).Info("Overdue fine reassessed",
		"loan_id", l.ID.String(),
		"fine_id", existing.ID.String(),
		"days_overdue", days,
		"amount", existing.Amount(),
	)
	return existing, true, nil
}

// AssessDamage charges the copy price plus the surcharge once per loan
func (a *FineAssessorImpl) AssessDamage(ctx context.Context, tx pgx.Tx, l *loan.Loan, priceCents int64, now time.Time) (*fine.Fine, bool, error) {
	fineRepoTx := a.fineRepo.WithTx(tx)

	existing, err := fineRepoTx.GetByLoanAndReason(ctx, l.ID, fine.ReasonDamage)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load damage fine for loan %s: %w", l.ID, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	f, err := fine.NewDamageFine(l.ID, priceCents, now)
	if err != nil {
		return nil, false, err
	}
	if err := fineRepoTx.Create(ctx, f); err != nil {
		return nil, false, fmt.Errorf("failed to create damage fine for loan %s: %w", l.ID, err)
	}
	logger.FromContext(ctx, a.logger).Info("Damage fine assessed", "loan_id", l.ID.String(), "amount", f.Amount())
	return f, true, nil
}
