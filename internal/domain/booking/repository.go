package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the state of a booking read for payment reconciliation.
// Pricing is opaque to the reconciler and passed through to the executors unmodified.
type Snapshot struct {
	ID               uuid.UUID
	CustomerID       uuid.UUID
	CarID            uuid.UUID
	State            LifecycleState
	PaymentReference *string
	Pricing          json.RawMessage
	TotalAmount      int64
	Currency         string
}

// TransitionResult reports the state after an executor ran and whether it changed anything.
type TransitionResult struct {
	State   LifecycleState
	Applied bool
}

// LedgerEntry is one payment side effect recorded against a booking.
type LedgerEntry struct {
	Kind             string
	PaymentReference string
	Amount           int64
	Currency         string
	Reason           string
	CreatedAt        time.Time
}

// BookingRepository defines the persistence contract for booking aggregates.
type BookingRepository interface {
	// ResolveForPaymentCheck reads the booking only if it is owned by customerID.
	// A missing or foreign booking yields domain.ErrNotFoundOrUnauthorized.
	ResolveForPaymentCheck(ctx context.Context, bookingID, customerID uuid.UUID) (*Snapshot, error)

	// FindByID retrieves a booking by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// ListAll retrieves all bookings with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Booking, int64, error)

	// CountByState returns booking counts grouped by lifecycle state (admin).
	CountByState(ctx context.Context) (map[string]int64, error)

	// Save persists a new booking.
	Save(ctx context.Context, booking *Booking) error

	// LedgerEntries returns the payment ledger of a booking, oldest first.
	LedgerEntries(ctx context.Context, bookingID uuid.UUID) ([]LedgerEntry, error)
}

// TransitionExecutor moves bookings between lifecycle states atomically.
//
// Implementations must serialize concurrent calls for the same booking, re-check
// ownership themselves, and treat a booking already in the target state as a
// successful no-op (Applied=false). Side effects on inventory and the payment
// ledger happen at most once per booking.
type TransitionExecutor interface {
	Activate(ctx context.Context, bookingID uuid.UUID, paymentRef string, customerID uuid.UUID, snapshot *Snapshot) (TransitionResult, error)
	FailPayment(ctx context.Context, bookingID, customerID uuid.UUID, reason, paymentRef string) (TransitionResult, error)
	Refund(ctx context.Context, bookingID, customerID uuid.UUID, paymentRef string) (TransitionResult, error)
}
