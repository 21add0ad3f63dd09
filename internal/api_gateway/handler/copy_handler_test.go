package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/circulation/service"
	"github.com/library-circulation/internal/domain/catalog"
	"github.com/library-circulation/internal/domain/fine"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestCopyHandler(t *testing.T) {
	c := &catalog.Copy{ID: uuid.New(), TitleID: uuid.New(), BranchID: uuid.New(), Barcode: "B-0001", PriceCents: 2000, CreatedAt: t0}

	t.Run("GetBorrowedCopy", func(t *testing.T) {
		svc := new(MockCirculation)
		loanID := uuid.New()
		due := t0.AddDate(0, 0, 14)
		svc.On("GetCopy", mock.Anything, member, c.ID).Return(&service.CopyView{
			Copy:         c,
			Availability: catalog.AvailabilityBorrowed,
			OpenLoanID:   &loanID,
			DueAt:        &due,
		}, nil).Once()

		rr := do(t, newTestRouter(svc), member, http.MethodGet, "/copies/"+c.ID.String(), "")

		assert.Equal(t, http.StatusOK, rr.Code)
		env := decode[CopyResponse](t, rr.Body.Bytes())
		assert.Equal(t, "borrowed", env.Data.Availability)
		assert.Equal(t, loanID.String(), env.Data.OpenLoanID)
		assert.Equal(t, "B-0001", env.Data.Barcode)
	})

	t.Run("WithdrawInUse", func(t *testing.T) {
		svc := new(MockCirculation)
		svc.On("WithdrawCopy", mock.Anything, librarian, c.ID).Return(nil, shared.ErrCopyInUse).Once()

		rr := do(t, newTestRouter(svc), librarian, http.MethodPost, "/copies/"+c.ID.String()+"/withdraw", "")

		assert.Equal(t, http.StatusConflict, rr.Code)
		env := decode[any](t, rr.Body.Bytes())
		assert.Equal(t, "COPY_IN_USE", env.Error.Code)
	})
}

func TestFineHandler_Pay(t *testing.T) {
	svc := new(MockCirculation)
	paidAt := t0.Add(time.Hour)
	f := &fine.Fine{ID: uuid.New(), LoanID: uuid.New(), Reason: fine.ReasonOverdue, AmountCents: 1600, DaysOverdue: 3, ComputedAt: t0, Paid: true, PaidAt: &paidAt}
	borrower := uuid.New()
	svc.On("PayFine", mock.Anything, librarian, f.ID).Return(&service.FineView{Fine: f, BorrowerID: borrower}, nil).Once()

	rr := do(t, newTestRouter(svc), librarian, http.MethodPost, "/fines/"+f.ID.String()+"/pay", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decode[FineResponse](t, rr.Body.Bytes())
	assert.Equal(t, "16.00", env.Data.Amount)
	assert.Equal(t, int64(1600), env.Data.AmountCents)
	assert.True(t, env.Data.Paid)
	assert.Equal(t, borrower.String(), env.Data.BorrowerID)
	assert.Equal(t, "2024-04-01T11:00:00Z", env.Data.PaidAt)
}
