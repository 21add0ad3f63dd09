package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/access"
)

// Type names a circulation transition
type Type string

const (
	LoanRequested          Type = "loan.requested"
	LoanApproved           Type = "loan.approved"
	LoanRejected           Type = "loan.rejected"
	LoanCancelled          Type = "loan.cancelled"
	LoanActivated          Type = "loan.activated"
	LoanOverdue            Type = "loan.overdue"
	LoanReturned           Type = "loan.returned"
	LoanExtensionRequested Type = "loan.extension_requested"
	LoanExtended           Type = "loan.extended"
	LoanExtensionRejected  Type = "loan.extension_rejected"

	ReservationQueued    Type = "reservation.queued"
	ReservationConfirmed Type = "reservation.confirmed"
	ReservationFulfilled Type = "reservation.fulfilled"
	ReservationExpired   Type = "reservation.expired"
	ReservationCancelled Type = "reservation.cancelled"
	ReservationRejected  Type = "reservation.rejected"

	FineAssessed Type = "fine.assessed"
	FinePaid     Type = "fine.paid"

	CopyWithdrawn Type = "copy.withdrawn"
)

// AggregateType names the record an event belongs to
type AggregateType string

const (
	AggregateLoan        AggregateType = "loan"
	AggregateReservation AggregateType = "reservation"
	AggregateFine        AggregateType = "fine"
	AggregateCopy        AggregateType = "copy"
)

// ParseAggregateType validates a path or query value
func ParseAggregateType(s string) (AggregateType, bool) {
	switch a := AggregateType(s); a {
	case AggregateLoan, AggregateReservation, AggregateFine, AggregateCopy:
		return a, true
	}
	return "", false
}

// Event is the record of one committed transition
type Event struct {
	ID            uuid.UUID      `json:"id"`
	Type          Type           `json:"type"`
	AggregateType AggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID      `json:"aggregate_id"`
	ActorID       uuid.UUID      `json:"actor_id"`
	ActorRole     access.Role    `json:"actor_role,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Data          map[string]any `json:"data,omitempty"`
}

// New builds an event for aggregate id caused by actor
func New(t Type, agg AggregateType, id uuid.UUID, actor access.Actor, now time.Time, data map[string]any) *Event {
	return &Event{
		ID:            uuid.New(),
		Type:          t,
		AggregateType: agg,
		AggregateID:   id,
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		OccurredAt:    now,
		Data:          data,
	}
}

type correlationKey struct{}

// ContextWithCorrelationID attaches the request correlation id to ctx
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation id stored in ctx, if any
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
