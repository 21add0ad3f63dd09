package reservation

import (
	"sort"

	"github.com/google/uuid"
)

// Queue is one title's waiting list of queued reservations, kept in Less order
type Queue struct {
	TitleID uuid.UUID
	items   []*Reservation
}

// NewQueue builds a queue from reservations in any order; non-queued entries are dropped
func NewQueue(titleID uuid.UUID, reservations []*Reservation) *Queue {
	q := &Queue{TitleID: titleID}
	for _, r := range reservations {
		q.Enqueue(r)
	}
	return q
}

// Enqueue inserts r at its ordered position
func (q *Queue) Enqueue(r *Reservation) {
	if r.Status != StatusQueued || r.TitleID != q.TitleID {
		return
	}
	i := sort.Search(len(q.items), func(i int) bool {
		return Less(r, q.items[i])
	})
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = r
}

// NextEligible returns the head of the queue, or nil when empty
func (q *Queue) NextEligible() *Reservation {
	for _, r := range q.items {
		if r.Status == StatusQueued {
			return r
		}
	}
	return nil
}

// Remove drops a reservation by id and reports whether it was present
func (q *Queue) Remove(id uuid.UUID) bool {
	for i, r := range q.items {
		if r.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Position returns the 1-based position of id, or 0 when absent
func (q *Queue) Position(id uuid.UUID) int {
	for i, r := range q.items {
		if r.ID == id {
			return i + 1
		}
	}
	return 0
}

func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns the queue in order
func (q *Queue) Items() []*Reservation {
	out := make([]*Reservation, len(q.items))
	copy(out, q.items)
	return out
}
