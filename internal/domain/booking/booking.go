package booking

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/rentwheel/service-rental/pkg/domain"
)

const bookingNumberChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Booking is the aggregate root for a vehicle rental reservation.
type Booking struct {
	id            uuid.UUID
	bookingNumber string
	customerID    uuid.UUID
	carID         uuid.UUID
	branchID      *uuid.UUID
	state         LifecycleState

	paymentReference *string
	pricing          json.RawMessage
	totalAmount      int64
	currency         string

	startDate     time.Time
	endDate       time.Time
	inventoryHeld bool
	failureReason string
	activatedAt   *time.Time
	cancelledAt   *time.Time

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// generateBookingNumber creates a booking number in the format "RW-XXXXXX".
func generateBookingNumber() (string, error) {
	result := make([]byte, 6)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(bookingNumberChars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate booking number: %w", err)
		}
		result[i] = bookingNumberChars[n.Int64()]
	}
	return "RW-" + string(result), nil
}

// NewBooking creates a booking awaiting payment with an inventory hold already taken.
// The pricing document is stored as-is and handed to the activation executor unmodified.
func NewBooking(
	customerID, carID uuid.UUID,
	branchID *uuid.UUID,
	startDate, endDate time.Time,
	pricing json.RawMessage,
	totalAmount int64,
	currency string,
) (*Booking, error) {
	if customerID == uuid.Nil {
		return nil, domain.NewValidationError("customer ID is required")
	}
	if carID == uuid.Nil {
		return nil, domain.NewValidationError("car ID is required")
	}
	if !endDate.After(startDate) {
		return nil, domain.NewValidationError("end date must be after start date")
	}
	if totalAmount <= 0 {
		return nil, domain.NewValidationError("total amount must be positive")
	}
	if len(pricing) == 0 {
		pricing = json.RawMessage(`{}`)
	}

	bookingNumber, err := generateBookingNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Booking{
		id:            uuid.New(),
		bookingNumber: bookingNumber,
		customerID:    customerID,
		carID:         carID,
		branchID:      branchID,
		state:         StatePaymentPending,
		pricing:       pricing,
		totalAmount:   totalAmount,
		currency:      currency,
		startDate:     startDate.UTC(),
		endDate:       endDate.UTC(),
		inventoryHeld: true,
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(
	id uuid.UUID,
	bookingNumber string,
	customerID, carID uuid.UUID,
	branchID *uuid.UUID,
	state LifecycleState,
	paymentReference *string,
	pricing json.RawMessage,
	totalAmount int64,
	currency string,
	startDate, endDate time.Time,
	inventoryHeld bool,
	failureReason string,
	activatedAt, cancelledAt *time.Time,
	version int64,
	createdAt, updatedAt time.Time,
) *Booking {
	return &Booking{
		id:               id,
		bookingNumber:    bookingNumber,
		customerID:       customerID,
		carID:            carID,
		branchID:         branchID,
		state:            state,
		paymentReference: paymentReference,
		pricing:          pricing,
		totalAmount:      totalAmount,
		currency:         currency,
		startDate:        startDate,
		endDate:          endDate,
		inventoryHeld:    inventoryHeld,
		failureReason:    failureReason,
		activatedAt:      activatedAt,
		cancelledAt:      cancelledAt,
		version:          version,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// BookingNumber returns the human-readable booking number.
func (b *Booking) BookingNumber() string { return b.bookingNumber }

// CustomerID returns the owning customer's user ID.
func (b *Booking) CustomerID() uuid.UUID { return b.customerID }

// CarID returns the rented car's ID.
func (b *Booking) CarID() uuid.UUID { return b.carID }

// BranchID returns the pickup branch, if any.
func (b *Booking) BranchID() *uuid.UUID { return b.branchID }

// State returns the current lifecycle state.
func (b *Booking) State() LifecycleState { return b.state }

// PaymentReference returns the associated gateway payment ID, or nil.
func (b *Booking) PaymentReference() *string { return b.paymentReference }

// Pricing returns the opaque pricing document captured at reservation time.
func (b *Booking) Pricing() json.RawMessage { return b.pricing }

// TotalAmount returns the amount due in minor units.
func (b *Booking) TotalAmount() int64 { return b.totalAmount }

// Currency returns the currency code.
func (b *Booking) Currency() string { return b.currency }

// StartDate returns the rental start.
func (b *Booking) StartDate() time.Time { return b.startDate }

// EndDate returns the rental end.
func (b *Booking) EndDate() time.Time { return b.endDate }

// InventoryHeld reports whether a reservation hold is still outstanding.
func (b *Booking) InventoryHeld() bool { return b.inventoryHeld }

// FailureReason returns the recorded payment failure message.
func (b *Booking) FailureReason() string { return b.failureReason }

// ActivatedAt returns when the rental was activated.
func (b *Booking) ActivatedAt() *time.Time { return b.activatedAt }

// CancelledAt returns when the booking was cancelled.
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }

// Version returns the entity version for optimistic locking.
func (b *Booking) Version() int64 { return b.version }

// CreatedAt returns the creation timestamp.
func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// Snapshot returns the read model used by payment reconciliation.
func (b *Booking) Snapshot() Snapshot {
	return Snapshot{
		ID:               b.id,
		CustomerID:       b.customerID,
		CarID:            b.carID,
		State:            b.state,
		PaymentReference: b.paymentReference,
		Pricing:          b.pricing,
		TotalAmount:      b.totalAmount,
		Currency:         b.currency,
	}
}

// --- Behavior ---
//
// Each transition returns changed=false without error when the booking is already in
// the target state, so repeated reconciliations are harmless.

// Activate moves a paid booking from payment_pending to active.
func (b *Booking) Activate(paymentRef string) (bool, error) {
	if b.state == StateActive {
		return false, nil
	}
	if !b.state.CanTransitionTo(StateActive) {
		return false, domain.NewInvalidStateError(string(b.state), string(StateActive))
	}
	if paymentRef == "" {
		return false, domain.NewValidationError("payment reference is required")
	}
	now := time.Now().UTC()
	b.state = StateActive
	b.paymentReference = &paymentRef
	b.inventoryHeld = false
	b.activatedAt = &now
	b.updatedAt = now
	return true, nil
}

// FailPayment cancels a booking whose payment failed and records the reason.
func (b *Booking) FailPayment(reason, paymentRef string) (bool, error) {
	if b.state == StateCancelled {
		return false, nil
	}
	if b.state != StatePaymentPending {
		return false, domain.NewInvalidStateError(string(b.state), string(StateCancelled))
	}
	if reason == "" {
		reason = "payment failed"
	}
	now := time.Now().UTC()
	b.state = StateCancelled
	b.failureReason = reason
	if paymentRef != "" {
		b.paymentReference = &paymentRef
	}
	b.inventoryHeld = false
	b.cancelledAt = &now
	b.updatedAt = now
	return true, nil
}

// Refund cancels an active rental after the gateway refunded its payment.
func (b *Booking) Refund(paymentRef string) (bool, error) {
	if b.state == StateCancelled {
		return false, nil
	}
	if b.state != StateActive {
		return false, domain.NewInvalidStateError(string(b.state), string(StateCancelled))
	}
	now := time.Now().UTC()
	b.state = StateCancelled
	if paymentRef != "" {
		b.paymentReference = &paymentRef
	}
	b.cancelledAt = &now
	b.updatedAt = now
	return true, nil
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
	b.updatedAt = time.Now().UTC()
}
