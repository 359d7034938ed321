package application

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	bookingDomain "github.com/rentwheel/service-rental/internal/domain/booking"
	"github.com/rentwheel/service-rental/internal/domain/payment"
	"github.com/rentwheel/service-rental/pkg/domain"
	"github.com/rentwheel/service-rental/pkg/kafka"
)

var errMockStore = errors.New("mock store error")

// FakeBookingStore is an in-memory BookingRepository and TransitionExecutor.
// The mutex plays the role of the row lock.
type FakeBookingStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*bookingDomain.Booking
	ledger   map[uuid.UUID][]bookingDomain.LedgerEntry

	ResolveCalls   int
	TransitionCall int
	SideEffects    map[string]int // action -> times the one-time side effect ran
	FailOnExecute  error
	FailOnReadBack bool
}

func NewFakeBookingStore() *FakeBookingStore {
	return &FakeBookingStore{
		bookings:    make(map[uuid.UUID]*bookingDomain.Booking),
		ledger:      make(map[uuid.UUID][]bookingDomain.LedgerEntry),
		SideEffects: make(map[string]int),
	}
}

func (f *FakeBookingStore) Put(bk *bookingDomain.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[bk.ID()] = bk
}

func (f *FakeBookingStore) State(id uuid.UUID) bookingDomain.LifecycleState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookings[id].State()
}

func (f *FakeBookingStore) ResolveForPaymentCheck(_ context.Context, bookingID, customerID uuid.UUID) (*bookingDomain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ResolveCalls++
	if f.FailOnReadBack && f.ResolveCalls > 1 {
		return nil, errMockStore
	}
	bk, ok := f.bookings[bookingID]
	if !ok || bk.CustomerID() != customerID {
		return nil, domain.ErrNotFoundOrUnauthorized
	}
	snap := bk.Snapshot()
	return &snap, nil
}

func (f *FakeBookingStore) FindByID(_ context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bk, ok := f.bookings[id]
	if !ok {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return bk, nil
}

func (f *FakeBookingStore) ListAll(_ context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]*bookingDomain.Booking, 0, len(f.bookings))
	for _, bk := range f.bookings {
		all = append(all, bk)
	}
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := min(start+limit, len(all))
	return all[start:end], int64(len(all)), nil
}

func (f *FakeBookingStore) CountByState(_ context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, bk := range f.bookings {
		counts[string(bk.State())]++
	}
	return counts, nil
}

func (f *FakeBookingStore) Save(_ context.Context, bk *bookingDomain.Booking) error {
	f.Put(bk)
	return nil
}

func (f *FakeBookingStore) LedgerEntries(_ context.Context, bookingID uuid.UUID) ([]bookingDomain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ledger[bookingID], nil
}

func (f *FakeBookingStore) Activate(_ context.Context, bookingID uuid.UUID, paymentRef string, customerID uuid.UUID, _ *bookingDomain.Snapshot) (bookingDomain.TransitionResult, error) {
	return f.transition(bookingID, customerID, "activate", func(bk *bookingDomain.Booking) (bool, error) {
		return bk.Activate(paymentRef)
	})
}

func (f *FakeBookingStore) FailPayment(_ context.Context, bookingID, customerID uuid.UUID, reason, paymentRef string) (bookingDomain.TransitionResult, error) {
	return f.transition(bookingID, customerID, "fail_payment", func(bk *bookingDomain.Booking) (bool, error) {
		return bk.FailPayment(reason, paymentRef)
	})
}

func (f *FakeBookingStore) Refund(_ context.Context, bookingID, customerID uuid.UUID, paymentRef string) (bookingDomain.TransitionResult, error) {
	return f.transition(bookingID, customerID, "refund", func(bk *bookingDomain.Booking) (bool, error) {
		return bk.Refund(paymentRef)
	})
}

func (f *FakeBookingStore) transition(bookingID, customerID uuid.UUID, action string, apply func(*bookingDomain.Booking) (bool, error)) (bookingDomain.TransitionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.TransitionCall++
	if f.FailOnExecute != nil {
		return bookingDomain.TransitionResult{}, f.FailOnExecute
	}
	bk, ok := f.bookings[bookingID]
	if !ok || bk.CustomerID() != customerID {
		return bookingDomain.TransitionResult{}, domain.ErrNotFoundOrUnauthorized
	}
	changed, err := apply(bk)
	if err != nil {
		return bookingDomain.TransitionResult{}, err
	}
	if changed {
		f.SideEffects[action]++
		f.ledger[bookingID] = append(f.ledger[bookingID], bookingDomain.LedgerEntry{Kind: action})
	}
	return bookingDomain.TransitionResult{State: bk.State(), Applied: changed}, nil
}

// MockGateway is a testify mock of payment.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	args := m.Called(ctx, paymentID)
	p, _ := args.Get(0).(*payment.Payment)
	return p, args.Error(1)
}

// FakePublisher records published events.
type FakePublisher struct {
	mu     sync.Mutex
	Events []kafka.CloudEvent
	Err    error
}

func (p *FakePublisher) PublishEvent(_ context.Context, _, _ string, ce kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, ce)
	return nil
}

func (p *FakePublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.Events))
	for i, e := range p.Events {
		types[i] = e.Type
	}
	return types
}
