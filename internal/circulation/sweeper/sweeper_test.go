package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLifecycle struct {
	mock.Mock
}

func (m *MockLifecycle) FlagOverdue(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockLifecycle) RefreshOverdueFine(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockLifecycle) ExpirePickup(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockLifecycle) ExpireHold(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockLifecycle) ListOverdueCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, limit)
	return ids(args)
}

func (m *MockLifecycle) ListOverdueLoans(ctx context.Context, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, limit)
	return ids(args)
}

func (m *MockLifecycle) ListExpiredPickups(ctx context.Context, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, limit)
	return ids(args)
}

func (m *MockLifecycle) ListLapsedHolds(ctx context.Context, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, limit)
	return ids(args)
}

func ids(args mock.Arguments) ([]uuid.UUID, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func newTestSweeper(t *testing.T, lifecycle *MockLifecycle) *Sweeper {
	t.Helper()
	s, err := NewSweeper(lifecycle, Config{Interval: 10 * time.Millisecond, BatchSize: 50, PoolSize: 4}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func TestParseSteps(t *testing.T) {
	steps, err := ParseSteps("")
	require.NoError(t, err)
	assert.Equal(t, AllSteps, steps)

	steps, err = ParseSteps("holds, pickups")
	require.NoError(t, err)
	assert.Equal(t, []Step{StepHolds, StepPickups}, steps)

	_, err = ParseSteps("overdue,returns")
	assert.Error(t, err)
}

func TestSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("counts changes and skips failures", func(t *testing.T) {
		lifecycle := &MockLifecycle{}
		late, stuck, alreadyDone := uuid.New(), uuid.New(), uuid.New()
		overdue := uuid.New()
		pickup := uuid.New()
		hold := uuid.New()

		lifecycle.On("ListOverdueCandidates", ctx, 50).Return([]uuid.UUID{late, stuck, alreadyDone}, nil)
		lifecycle.On("FlagOverdue", ctx, late).Return(true, nil)
		lifecycle.On("FlagOverdue", ctx, stuck).Return(false, errors.New("deadlock detected"))
		lifecycle.On("FlagOverdue", ctx, alreadyDone).Return(false, nil)
		lifecycle.On("ListOverdueLoans", ctx, 50).Return([]uuid.UUID{overdue}, nil)
		lifecycle.On("RefreshOverdueFine", ctx, overdue).Return(true, nil)
		lifecycle.On("ListExpiredPickups", ctx, 50).Return([]uuid.UUID{pickup}, nil)
		lifecycle.On("ExpirePickup", ctx, pickup).Return(true, nil)
		lifecycle.On("ListLapsedHolds", ctx, 50).Return([]uuid.UUID{hold}, nil)
		lifecycle.On("ExpireHold", ctx, hold).Return(true, nil)

		report := newTestSweeper(t, lifecycle).SweepOnce(ctx, AllSteps...)

		assert.Equal(t, int64(1), report.LoansFlaggedOverdue)
		assert.Equal(t, int64(1), report.FinesRefreshed)
		assert.Equal(t, int64(1), report.PickupsExpired)
		assert.Equal(t, int64(1), report.HoldsExpired)
		assert.Equal(t, int64(1), report.Failed)
		lifecycle.AssertExpectations(t)
	})

	t.Run("only requested steps run", func(t *testing.T) {
		lifecycle := &MockLifecycle{}
		hold := uuid.New()
		lifecycle.On("ListLapsedHolds", ctx, 50).Return([]uuid.UUID{hold}, nil)
		lifecycle.On("ExpireHold", ctx, hold).Return(true, nil)

		report := newTestSweeper(t, lifecycle).SweepOnce(ctx, StepHolds)
		assert.Equal(t, int64(1), report.HoldsExpired)
		lifecycle.AssertNotCalled(t, "ListOverdueCandidates", mock.Anything, mock.Anything)
		lifecycle.AssertNotCalled(t, "ListExpiredPickups", mock.Anything, mock.Anything)
	})

	t.Run("listing failure does not abort the pass", func(t *testing.T) {
		lifecycle := &MockLifecycle{}
		pickup := uuid.New()
		lifecycle.On("ListOverdueCandidates", ctx, 50).Return(nil, errors.New("connection reset"))
		lifecycle.On("ListOverdueLoans", ctx, 50).Return([]uuid.UUID{}, nil)
		lifecycle.On("ListExpiredPickups", ctx, 50).Return([]uuid.UUID{pickup}, nil)
		lifecycle.On("ExpirePickup", ctx, pickup).Return(true, nil)

		report := newTestSweeper(t, lifecycle).SweepOnce(ctx, StepOverdue, StepPickups)
		assert.Equal(t, int64(1), report.Failed)
		assert.Equal(t, int64(1), report.PickupsExpired)
	})
}

func TestSweeper_Preview(t *testing.T) {
	ctx := context.Background()
	lifecycle := &MockLifecycle{}
	pickup := uuid.New()
	lifecycle.On("ListExpiredPickups", ctx, 50).Return([]uuid.UUID{pickup}, nil)

	preview, err := newTestSweeper(t, lifecycle).Preview(ctx, StepPickups)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pickup}, preview.ExpiredPickups)
	assert.Empty(t, preview.LapsedHolds)
	lifecycle.AssertNotCalled(t, "ExpirePickup", mock.Anything, mock.Anything)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	lifecycle := &MockLifecycle{}
	lifecycle.On("ListOverdueCandidates", mock.Anything, 50).Return([]uuid.UUID{}, nil)
	lifecycle.On("ListOverdueLoans", mock.Anything, 50).Return([]uuid.UUID{}, nil)
	lifecycle.On("ListExpiredPickups", mock.Anything, 50).Return([]uuid.UUID{}, nil)
	lifecycle.On("ListLapsedHolds", mock.Anything, 50).Return([]uuid.UUID{}, nil)

	s := newTestSweeper(t, lifecycle)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	lifecycle.AssertCalled(t, "ListLapsedHolds", mock.Anything, 50)
}
