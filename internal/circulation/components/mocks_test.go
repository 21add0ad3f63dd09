package components

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/catalog"
	"github.com/library-circulation/internal/domain/fine"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/outbox"
	"github.com/library-circulation/internal/domain/pickup"
	"github.com/library-circulation/internal/domain/reservation"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

type MockLoanRepo struct {
	mock.Mock
}

func (m *MockLoanRepo) Create(ctx context.Context, l *loan.Loan) error {
	return m.Called(ctx, l).Error(0)
}

func (m *MockLoanRepo) GetByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Loan), args.Error(1)
}

func (m *MockLoanRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Loan), args.Error(1)
}

func (m *MockLoanRepo) Update(ctx context.Context, l *loan.Loan) error {
	return m.Called(ctx, l).Error(0)
}

func (m *MockLoanRepo) GetOpenByCopy(ctx context.Context, copyID uuid.UUID) (*loan.Loan, error) {
	args := m.Called(ctx, copyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Loan), args.Error(1)
}

func (m *MockLoanRepo) CountOpenByBorrower(ctx context.Context, borrowerID uuid.UUID) (int, error) {
	args := m.Called(ctx, borrowerID)
	return args.Int(0), args.Error(1)
}

func (m *MockLoanRepo) HasOpenForTitle(ctx context.Context, borrowerID, titleID uuid.UUID) (bool, error) {
	args := m.Called(ctx, borrowerID, titleID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoanRepo) ListOverdueCandidateIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockLoanRepo) ListStaleOverdueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockLoanRepo) WithTx(tx pgx.Tx) loan.Repository {
	return m
}

type MockReservationRepo struct {
	mock.Mock
}

func (m *MockReservationRepo) Create(ctx context.Context, r *reservation.Reservation) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockReservationRepo) GetByID(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepo) Update(ctx context.Context, r *reservation.Reservation) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockReservationRepo) ListQueuedByTitle(ctx context.Context, titleID uuid.UUID) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, titleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepo) GetHoldByCopy(ctx context.Context, copyID uuid.UUID) (*reservation.Reservation, error) {
	args := m.Called(ctx, copyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepo) GetActiveForBorrower(ctx context.Context, borrowerID, titleID uuid.UUID) (*reservation.Reservation, error) {
	args := m.Called(ctx, borrowerID, titleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepo) ListLapsedHoldIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockReservationRepo) WithTx(tx pgx.Tx) reservation.Repository {
	return m
}

type MockCatalogRepo struct {
	mock.Mock
}

func (m *MockCatalogRepo) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Copy, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Copy), args.Error(1)
}

func (m *MockCatalogRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*catalog.Copy, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Copy), args.Error(1)
}

func (m *MockCatalogRepo) ListByTitle(ctx context.Context, titleID uuid.UUID) ([]*catalog.Copy, error) {
	args := m.Called(ctx, titleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*catalog.Copy), args.Error(1)
}

func (m *MockCatalogRepo) GetTitle(ctx context.Context, id uuid.UUID) (*catalog.Title, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Title), args.Error(1)
}

func (m *MockCatalogRepo) LockTitle(ctx context.Context, id uuid.UUID) (*catalog.Title, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Title), args.Error(1)
}

func (m *MockCatalogRepo) MarkWithdrawn(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockCatalogRepo) WithTx(tx pgx.Tx) catalog.Repository {
	return m
}

type MockPickupRepo struct {
	mock.Mock
}

func (m *MockPickupRepo) Create(ctx context.Context, code *pickup.Code) error {
	return m.Called(ctx, code).Error(0)
}

func (m *MockPickupRepo) GetActiveByLoan(ctx context.Context, loanID uuid.UUID) (*pickup.Code, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pickup.Code), args.Error(1)
}

func (m *MockPickupRepo) ExistsActive(ctx context.Context, value string) (bool, error) {
	args := m.Called(ctx, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockPickupRepo) Update(ctx context.Context, code *pickup.Code) error {
	return m.Called(ctx, code).Error(0)
}

func (m *MockPickupRepo) ListExpiredLoanIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockPickupRepo) WithTx(tx pgx.Tx) pickup.Repository {
	return m
}

type MockFineRepo struct {
	mock.Mock
}

func (m *MockFineRepo) Create(ctx context.Context, f *fine.Fine) error {
	return m.Called(ctx, f).Error(0)
}

func (m *MockFineRepo) GetByID(ctx context.Context, id uuid.UUID) (*fine.Fine, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fine.Fine), args.Error(1)
}

func (m *MockFineRepo) GetByLoanAndReason(ctx context.Context, loanID uuid.UUID, reason fine.Reason) (*fine.Fine, error) {
	args := m.Called(ctx, loanID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fine.Fine), args.Error(1)
}

func (m *MockFineRepo) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*fine.Fine, error) {
	args := m.Called(ctx, loanID)
	return args.Get(0).([]*fine.Fine), args.Error(1)
}

func (m *MockFineRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*fine.Fine, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fine.Fine), args.Error(1)
}

func (m *MockFineRepo) Update(ctx context.Context, f *fine.Fine) error {
	return m.Called(ctx, f).Error(0)
}

func (m *MockFineRepo) WithTx(tx pgx.Tx) fine.Repository {
	return m
}

type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	return m.Called(ctx, message).Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepo) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepo) GetByEventID(ctx context.Context, eventID uuid.UUID) (*outbox.Message, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	args := m.Called(tx)
	return args.Get(0).(outbox.Repository)
}
