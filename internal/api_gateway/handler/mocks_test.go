package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/library-circulation/internal/api_gateway/middleware"
	"github.com/library-circulation/internal/circulation/service"
	"github.com/library-circulation/internal/domain/access"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/reservation"
	"github.com/stretchr/testify/mock"
)

// MockCirculation mocks every service the gateway calls
type MockCirculation struct {
	mock.Mock
}

func (m *MockCirculation) loanView(args mock.Arguments) (*service.LoanView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoanView), args.Error(1)
}

func (m *MockCirculation) reservationView(args mock.Arguments) (*service.ReservationView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReservationView), args.Error(1)
}

func (m *MockCirculation) extension(args mock.Arguments) (*loan.ExtensionRequest, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.ExtensionRequest), args.Error(1)
}

func (m *MockCirculation) RequestLoan(ctx context.Context, actor access.Actor, copyID, borrowerID uuid.UUID) (*service.LoanView, error) {
	return m.loanView(m.Called(ctx, actor, copyID, borrowerID))
}

func (m *MockCirculation) ApproveLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*service.ApprovalView, error) {
	args := m.Called(ctx, actor, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ApprovalView), args.Error(1)
}

func (m *MockCirculation) RejectLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID, reason string) (*service.LoanView, error) {
	return m.loanView(m.Called(ctx, actor, loanID, reason))
}

func (m *MockCirculation) CancelLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*service.LoanView, error) {
	return m.loanView(m.Called(ctx, actor, loanID))
}

func (m *MockCirculation) RedeemPickup(ctx context.Context, actor access.Actor, loanID uuid.UUID, code string) (*service.LoanView, error) {
	return m.loanView(m.Called(ctx, actor, loanID, code))
}

func (m *MockCirculation) ReturnLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID, damaged bool) (*service.LoanView, error) {
	return m.loanView(m.Called(ctx, actor, loanID, damaged))
}

func (m *MockCirculation) RequestExtension(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*loan.ExtensionRequest, error) {
	return m.extension(m.Called(ctx, actor, loanID))
}

func (m *MockCirculation) ApproveExtension(ctx context.Context, actor access.Actor, extensionID uuid.UUID) (*service.LoanView, error) {
	return m.loanView(m.Called(ctx, actor, extensionID))
}

func (m *MockCirculation) RejectExtension(ctx context.Context, actor access.Actor, extensionID uuid.UUID, reason string) (*loan.ExtensionRequest, error) {
	return m.extension(m.Called(ctx, actor, extensionID, reason))
}

func (m *MockCirculation) GetLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*service.LoanView, error) {
	return m.loanView(m.Called(ctx, actor, loanID))
}

func (m *MockCirculation) PlaceReservation(ctx context.Context, actor access.Actor, titleID, borrowerID uuid.UUID, class reservation.Class) (*service.ReservationView, error) {
	return m.reservationView(m.Called(ctx, actor, titleID, borrowerID, class))
}

func (m *MockCirculation) ConfirmReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID) (*service.ReservationView, error) {
	return m.reservationView(m.Called(ctx, actor, reservationID))
}

func (m *MockCirculation) RejectReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID, reason string) (*service.ReservationView, error) {
	return m.reservationView(m.Called(ctx, actor, reservationID, reason))
}

func (m *MockCirculation) CancelReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID) (*service.ReservationView, error) {
	return m.reservationView(m.Called(ctx, actor, reservationID))
}

func (m *MockCirculation) GetReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID) (*service.ReservationView, error) {
	return m.reservationView(m.Called(ctx, actor, reservationID))
}

func (m *MockCirculation) ListQueue(ctx context.Context, actor access.Actor, titleID uuid.UUID) ([]*service.ReservationView, error) {
	args := m.Called(ctx, actor, titleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*service.ReservationView), args.Error(1)
}

func (m *MockCirculation) GetFine(ctx context.Context, actor access.Actor, fineID uuid.UUID) (*service.FineView, error) {
	args := m.Called(ctx, actor, fineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FineView), args.Error(1)
}

func (m *MockCirculation) PayFine(ctx context.Context, actor access.Actor, fineID uuid.UUID) (*service.FineView, error) {
	args := m.Called(ctx, actor, fineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FineView), args.Error(1)
}

func (m *MockCirculation) GetCopy(ctx context.Context, actor access.Actor, copyID uuid.UUID) (*service.CopyView, error) {
	args := m.Called(ctx, actor, copyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CopyView), args.Error(1)
}

func (m *MockCirculation) WithdrawCopy(ctx context.Context, actor access.Actor, copyID uuid.UUID) (*service.CopyView, error) {
	args := m.Called(ctx, actor, copyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CopyView), args.Error(1)
}

func (m *MockCirculation) GetTimeline(ctx context.Context, actor access.Actor, aggType event.AggregateType, id uuid.UUID, page, perPage int) (*service.TimelinePage, error) {
	args := m.Called(ctx, actor, aggType, id, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TimelinePage), args.Error(1)
}

var _ service.Circulation = (*MockCirculation)(nil)

var (
	t0        = time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	member    = access.Actor{ID: uuid.New(), Role: access.RoleMember}
	librarian = access.Actor{ID: uuid.New(), Role: access.RoleLibrarian}
)

// newTestRouter wires every handler the way the gateway does, behind the
// correlation and actor middleware
func newTestRouter(svc *MockCirculation) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	loans := NewLoanHandler(logger, svc)
	reservations := NewReservationHandler(logger, svc)
	copies := NewCopyHandler(logger, svc)
	fines := NewFineHandler(logger, svc)
	timelines := NewTimelineHandler(logger, svc)

	r := gin.New()
	r.Use(middleware.CorrelationID(), middleware.Actor())
	r.POST("/copies/:id/loans", loans.Request)
	r.GET("/copies/:id", copies.Get)
	r.POST("/copies/:id/withdraw", copies.Withdraw)
	r.GET("/loans/:id", loans.Get)
	r.POST("/loans/:id/approve", loans.Approve)
	r.POST("/loans/:id/reject", loans.Reject)
	r.POST("/loans/:id/cancel", loans.Cancel)
	r.POST("/loans/:id/pickup", loans.Pickup)
	r.POST("/loans/:id/return", loans.Return)
	r.POST("/loans/:id/extensions", loans.RequestExtension)
	r.POST("/extensions/:id/approve", loans.ApproveExtension)
	r.POST("/extensions/:id/reject", loans.RejectExtension)
	r.POST("/titles/:id/reservations", reservations.Place)
	r.GET("/titles/:id/queue", reservations.ListQueue)
	r.GET("/reservations/:id", reservations.Get)
	r.POST("/reservations/:id/confirm", reservations.Confirm)
	r.POST("/reservations/:id/reject", reservations.Reject)
	r.POST("/reservations/:id/cancel", reservations.Cancel)
	r.GET("/fines/:id", fines.Get)
	r.POST("/fines/:id/pay", fines.Pay)
	r.GET("/timeline/:type/:id", timelines.Get)
	return r
}

// do sends a request as actor and returns the recorder
func do(t *testing.T, r *gin.Engine, actor access.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.ActorIDHeader, actor.ID.String())
	req.Header.Set(middleware.ActorRoleHeader, string(actor.Role))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}
