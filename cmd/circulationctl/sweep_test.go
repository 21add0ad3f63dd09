package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/circulation/sweeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	report  *sweeper.Report
	preview *sweeper.Preview
	err     error
	steps   []sweeper.Step
	swept   bool
}

func (f *fakeSweeper) SweepOnce(_ context.Context, steps ...sweeper.Step) *sweeper.Report {
	f.steps = steps
	f.swept = true
	return f.report
}

func (f *fakeSweeper) Preview(_ context.Context, steps ...sweeper.Step) (*sweeper.Preview, error) {
	f.steps = steps
	return f.preview, f.err
}

func execute(t *testing.T, fake *fakeSweeper, openErr error, args ...string) (string, error) {
	t.Helper()
	cleaned := false
	t.Cleanup(func() {
		if openErr == nil {
			assert.True(t, cleaned, "cleanup must run")
		}
	})

	open := func(context.Context, string) (lifecycleSweeper, func(), error) {
		if openErr != nil {
			return nil, nil, openErr
		}
		return fake, func() { cleaned = true }, nil
	}

	root := newRootCmd()
	for _, c := range root.Commands() {
		if c.Name() == "sweep" {
			root.RemoveCommand(c)
		}
	}
	root.AddCommand(newSweepCmd(open))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSweep_RunsAllSteps(t *testing.T) {
	fake := &fakeSweeper{report: &sweeper.Report{LoansFlaggedOverdue: 2, FinesRefreshed: 3, PickupsExpired: 1}}

	out, err := execute(t, fake, nil, "sweep")

	require.NoError(t, err)
	assert.True(t, fake.swept)
	assert.Equal(t, sweeper.AllSteps, fake.steps)
	assert.Contains(t, out, "loans flagged overdue: 2")
	assert.Contains(t, out, "pickups expired:       1")
}

func TestSweep_Only(t *testing.T) {
	fake := &fakeSweeper{report: &sweeper.Report{}}

	_, err := execute(t, fake, nil, "sweep", "--only", "holds")

	require.NoError(t, err)
	assert.Equal(t, []sweeper.Step{sweeper.StepHolds}, fake.steps)
}

func TestSweep_UnknownStep(t *testing.T) {
	fake := &fakeSweeper{}

	_, err := execute(t, fake, errors.New("must not open"), "sweep", "--only", "returns")

	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "must not open")
	assert.False(t, fake.swept)
}

func TestSweep_FailuresAreReported(t *testing.T) {
	fake := &fakeSweeper{report: &sweeper.Report{HoldsExpired: 4, Failed: 2}}

	_, err := execute(t, fake, nil, "sweep")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 records failed")
}

func TestSweep_DryRun(t *testing.T) {
	loanID := uuid.New()
	fake := &fakeSweeper{preview: &sweeper.Preview{
		OverdueCandidates: []uuid.UUID{loanID},
	}}

	out, err := execute(t, fake, nil, "sweep", "--dry-run", "--only", "overdue")

	require.NoError(t, err)
	assert.False(t, fake.swept)
	assert.Contains(t, out, "loans to flag overdue: 1")
	assert.Contains(t, out, loanID.String())
	assert.Contains(t, out, "overdue loans to refresh: 0")
	assert.NotContains(t, out, "holds to expire")
}

func TestSweep_OpenFailure(t *testing.T) {
	_, err := execute(t, &fakeSweeper{}, errors.New("connection refused"), "sweep")
	assert.EqualError(t, err, "connection refused")
}
