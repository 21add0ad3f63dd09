package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/catalog"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/fine"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/outbox"
	"github.com/library-circulation/internal/domain/pickup"
	"github.com/library-circulation/internal/domain/reservation"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/domain/timeline"
)

// memStore is an in-memory database. Transactions are serialized and roll
// back by restoring a snapshot, which gives the same isolation the row locks
// give in PostgreSQL.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	loans        map[uuid.UUID]loan.Loan
	extensions   map[uuid.UUID]loan.ExtensionRequest
	reservations map[uuid.UUID]reservation.Reservation
	fines        map[uuid.UUID]fine.Fine
	copies       map[uuid.UUID]catalog.Copy
	titles       map[uuid.UUID]catalog.Title
	codes        map[uuid.UUID]pickup.Code
	outbox       []outbox.Message
}

func newMemStore() *memStore {
	return &memStore{
		loans:        make(map[uuid.UUID]loan.Loan),
		extensions:   make(map[uuid.UUID]loan.ExtensionRequest),
		reservations: make(map[uuid.UUID]reservation.Reservation),
		fines:        make(map[uuid.UUID]fine.Fine),
		copies:       make(map[uuid.UUID]catalog.Copy),
		titles:       make(map[uuid.UUID]catalog.Title),
		codes:        make(map[uuid.UUID]pickup.Code),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memStore{
		loans:        cloneMap(s.loans),
		extensions:   cloneMap(s.extensions),
		reservations: cloneMap(s.reservations),
		fines:        cloneMap(s.fines),
		copies:       cloneMap(s.copies),
		titles:       cloneMap(s.titles),
		codes:        cloneMap(s.codes),
		outbox:       append([]outbox.Message(nil), s.outbox...),
	}
}

func (s *memStore) restore(snap *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans = snap.loans
	s.extensions = snap.extensions
	s.reservations = snap.reservations
	s.fines = snap.fines
	s.copies = snap.copies
	s.titles = snap.titles
	s.codes = snap.codes
	s.outbox = snap.outbox
}

// ExecuteTx implements persistence.Transactor
func (s *memStore) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) events() []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*event.Event, 0, len(s.outbox))
	for _, m := range s.outbox {
		evt, err := m.GetEvent()
		if err != nil {
			panic(err)
		}
		out = append(out, evt)
	}
	return out
}

func (s *memStore) eventTypes() []event.Type {
	var types []event.Type
	for _, evt := range s.events() {
		types = append(types, evt.Type)
	}
	return types
}

type fakeLoans struct{ s *memStore }

func (r fakeLoans) WithTx(pgx.Tx) loan.Repository { return r }

func (r fakeLoans) Create(_ context.Context, l *loan.Loan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.loans {
		if other.CopyID == l.CopyID && other.Status.IsOpen() {
			return fmt.Errorf("copy %s already has an open loan: %w", l.CopyID, shared.ErrUnavailable)
		}
	}
	r.s.loans[l.ID] = *l
	return nil
}

func (r fakeLoans) GetByID(_ context.Context, id uuid.UUID) (*loan.Loan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.loans[id]
	if !ok {
		return nil, loan.ErrLoanNotFound{ID: id}
	}
	return &l, nil
}

func (r fakeLoans) LockForUpdate(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r fakeLoans) Update(_ context.Context, l *loan.Loan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.loans[l.ID]
	if !ok || stored.Version != l.Version {
		return loan.ErrConcurrentModification{ID: l.ID}
	}
	l.Version++
	r.s.loans[l.ID] = *l
	return nil
}

func (r fakeLoans) GetOpenByCopy(_ context.Context, copyID uuid.UUID) (*loan.Loan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.loans {
		if l.CopyID == copyID && l.Status.IsOpen() {
			return &l, nil
		}
	}
	return nil, nil
}

func (r fakeLoans) CountOpenByBorrower(_ context.Context, borrowerID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, l := range r.s.loans {
		if l.BorrowerID == borrowerID && l.Status.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (r fakeLoans) HasOpenForTitle(_ context.Context, borrowerID, titleID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.loans {
		if l.BorrowerID == borrowerID && l.TitleID == titleID && l.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeLoans) ListOverdueCandidateIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return r.list(limit, func(l loan.Loan) bool {
		return l.Status == loan.StatusActive && l.DueAt != nil && l.DueAt.Before(now)
	}), nil
}

func (r fakeLoans) ListStaleOverdueIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return r.list(limit, func(l loan.Loan) bool {
		if l.Status != loan.StatusOverdue {
			return false
		}
		for _, f := range r.s.fines {
			if f.LoanID == l.ID && f.Reason == fine.ReasonOverdue {
				return !f.Paid && f.DaysOverdue < l.DaysOverdue(now)
			}
		}
		return true
	}), nil
}

func (r fakeLoans) list(limit int, keep func(loan.Loan) bool) []uuid.UUID {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, l := range r.s.loans {
		if keep(l) {
			ids = append(ids, id)
		}
	}
	return truncate(ids, limit)
}

func truncate(ids []uuid.UUID, limit int) []uuid.UUID {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

type fakeExtensions struct{ s *memStore }

func (r fakeExtensions) WithTx(pgx.Tx) loan.ExtensionRepository { return r }

func (r fakeExtensions) Create(_ context.Context, req *loan.ExtensionRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.extensions[req.ID] = *req
	return nil
}

func (r fakeExtensions) GetByID(_ context.Context, id uuid.UUID) (*loan.ExtensionRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.extensions[id]
	if !ok {
		return nil, loan.ErrExtensionNotFound{ID: id}
	}
	return &req, nil
}

func (r fakeExtensions) LockForUpdate(ctx context.Context, id uuid.UUID) (*loan.ExtensionRequest, error) {
	return r.GetByID(ctx, id)
}

func (r fakeExtensions) GetPendingByLoan(_ context.Context, loanID uuid.UUID) (*loan.ExtensionRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, req := range r.s.extensions {
		if req.LoanID == loanID && req.Status == loan.ExtensionPending {
			return &req, nil
		}
	}
	return nil, nil
}

func (r fakeExtensions) Update(_ context.Context, req *loan.ExtensionRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.extensions[req.ID] = *req
	return nil
}

type fakeReservations struct{ s *memStore }

func (r fakeReservations) WithTx(pgx.Tx) reservation.Repository { return r }

func (r fakeReservations) Create(_ context.Context, res *reservation.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reservations[res.ID] = *res
	return nil
}

func (r fakeReservations) GetByID(_ context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, reservation.ErrReservationNotFound{ID: id}
	}
	return &res, nil
}

func (r fakeReservations) LockForUpdate(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	return r.GetByID(ctx, id)
}

func (r fakeReservations) Update(_ context.Context, res *reservation.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.reservations[res.ID]
	if !ok || stored.Version != res.Version {
		return reservation.ErrConcurrentModification{ID: res.ID}
	}
	res.Version++
	r.s.reservations[res.ID] = *res
	return nil
}

func (r fakeReservations) ListQueuedByTitle(_ context.Context, titleID uuid.UUID) ([]*reservation.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*reservation.Reservation
	for _, res := range r.s.reservations {
		if res.TitleID == titleID && res.Status == reservation.StatusQueued {
			res := res
			out = append(out, &res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return reservation.Less(out[i], out[j]) })
	return out, nil
}

func (r fakeReservations) find(keep func(reservation.Reservation) bool) *reservation.Reservation {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range r.s.reservations {
		if keep(res) {
			return &res
		}
	}
	return nil
}

func (r fakeReservations) GetHoldByCopy(_ context.Context, copyID uuid.UUID) (*reservation.Reservation, error) {
	return r.find(func(res reservation.Reservation) bool {
		return res.Status == reservation.StatusConfirmed && res.HeldCopyID != nil && *res.HeldCopyID == copyID
	}), nil
}

func (r fakeReservations) GetActiveForBorrower(_ context.Context, borrowerID, titleID uuid.UUID) (*reservation.Reservation, error) {
	return r.find(func(res reservation.Reservation) bool {
		return res.BorrowerID == borrowerID && res.TitleID == titleID && res.Status.Active()
	}), nil
}

func (r fakeReservations) ListLapsedHoldIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, res := range r.s.reservations {
		if res.HoldLapsed(now) {
			ids = append(ids, id)
		}
	}
	return truncate(ids, limit), nil
}

type fakeFines struct{ s *memStore }

func (r fakeFines) WithTx(pgx.Tx) fine.Repository { return r }

func (r fakeFines) Create(_ context.Context, f *fine.Fine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.fines {
		if other.LoanID == f.LoanID && other.Reason == f.Reason {
			return fmt.Errorf("duplicate %s fine for loan %s", f.Reason, f.LoanID)
		}
	}
	r.s.fines[f.ID] = *f
	return nil
}

func (r fakeFines) GetByID(_ context.Context, id uuid.UUID) (*fine.Fine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.fines[id]
	if !ok {
		return nil, fine.ErrFineNotFound{ID: id}
	}
	return &f, nil
}

func (r fakeFines) GetByLoanAndReason(_ context.Context, loanID uuid.UUID, reason fine.Reason) (*fine.Fine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.fines {
		if f.LoanID == loanID && f.Reason == reason {
			return &f, nil
		}
	}
	return nil, nil
}

func (r fakeFines) ListByLoan(_ context.Context, loanID uuid.UUID) ([]*fine.Fine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*fine.Fine{}
	for _, f := range r.s.fines {
		if f.LoanID == loanID {
			f := f
			out = append(out, &f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reason > out[j].Reason })
	return out, nil
}

func (r fakeFines) LockForUpdate(ctx context.Context, id uuid.UUID) (*fine.Fine, error) {
	return r.GetByID(ctx, id)
}

func (r fakeFines) Update(_ context.Context, f *fine.Fine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.fines[f.ID] = *f
	return nil
}

type fakeCatalog struct{ s *memStore }

func (r fakeCatalog) WithTx(pgx.Tx) catalog.Repository { return r }

func (r fakeCatalog) GetByID(_ context.Context, id uuid.UUID) (*catalog.Copy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.copies[id]
	if !ok {
		return nil, catalog.ErrCopyNotFound{ID: id}
	}
	return &c, nil
}

func (r fakeCatalog) LockForUpdate(ctx context.Context, id uuid.UUID) (*catalog.Copy, error) {
	return r.GetByID(ctx, id)
}

func (r fakeCatalog) ListByTitle(_ context.Context, titleID uuid.UUID) ([]*catalog.Copy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*catalog.Copy
	for _, c := range r.s.copies {
		if c.TitleID == titleID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Barcode < out[j].Barcode })
	return out, nil
}

func (r fakeCatalog) GetTitle(_ context.Context, id uuid.UUID) (*catalog.Title, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.titles[id]
	if !ok {
		return nil, catalog.ErrTitleNotFound{ID: id}
	}
	return &t, nil
}

func (r fakeCatalog) LockTitle(ctx context.Context, id uuid.UUID) (*catalog.Title, error) {
	return r.GetTitle(ctx, id)
}

func (r fakeCatalog) MarkWithdrawn(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.copies[id]
	c.WithdrawnAt = &at
	r.s.copies[id] = c
	return nil
}

type fakeCodes struct{ s *memStore }

func (r fakeCodes) WithTx(pgx.Tx) pickup.Repository { return r }

func (r fakeCodes) Create(_ context.Context, c *pickup.Code) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.codes[c.ID] = *c
	return nil
}

func (r fakeCodes) GetActiveByLoan(_ context.Context, loanID uuid.UUID) (*pickup.Code, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.codes {
		if c.LoanID == loanID && c.Active() {
			return &c, nil
		}
	}
	return nil, nil
}

func (r fakeCodes) ExistsActive(_ context.Context, value string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.codes {
		if c.Code == value && c.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeCodes) Update(_ context.Context, c *pickup.Code) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.codes[c.ID] = *c
	return nil
}

func (r fakeCodes) ListExpiredLoanIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for _, c := range r.s.codes {
		if c.Active() && c.PastExpiry(now) {
			ids = append(ids, c.LoanID)
		}
	}
	return truncate(ids, limit), nil
}

type fakeOutbox struct{ s *memStore }

func (r fakeOutbox) WithTx(pgx.Tx) outbox.Repository { return r }

func (r fakeOutbox) Create(_ context.Context, m *outbox.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = int64(len(r.s.outbox) + 1)
	r.s.outbox = append(r.s.outbox, *m)
	return nil
}

func (r fakeOutbox) GetPending(context.Context, int) ([]*outbox.Message, error) { return nil, nil }

func (r fakeOutbox) UpdateStatus(context.Context, int64, shared.OutboxStatus) error { return nil }

func (r fakeOutbox) IncrementAttempts(context.Context, int64) error { return nil }

func (r fakeOutbox) Delete(context.Context, int64) error { return nil }

func (r fakeOutbox) GetByEventID(_ context.Context, id uuid.UUID) (*outbox.Message, error) {
	return nil, outbox.ErrMessageNotFound{}
}

// fakeTimeline stores entries appended by the test
type fakeTimeline struct {
	mu      sync.Mutex
	entries []*timeline.Entry
}

func (r *fakeTimeline) Append(_ context.Context, entry *timeline.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeTimeline) matching(aggType event.AggregateType, id uuid.UUID) []*timeline.Entry {
	var out []*timeline.Entry
	for _, e := range r.entries {
		if e.AggregateType == string(aggType) && e.AggregateID == id.String() {
			out = append(out, e)
		}
	}
	return out
}

func (r *fakeTimeline) ListByAggregate(_ context.Context, aggType event.AggregateType, id uuid.UUID, limit, offset int) ([]*timeline.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.matching(aggType, id)
	if offset >= len(all) {
		return []*timeline.Entry{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *fakeTimeline) CountByAggregate(_ context.Context, aggType event.AggregateType, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.matching(aggType, id))), nil
}

// fakeClock is a settable shared.Clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
