package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics.
const (
	TopicBookingEvents   = "rental.booking.events"
	TopicPaymentWebhooks = "rental.payment.webhooks"
)

// Event types.
const (
	BookingActivated     = "booking.activated"
	BookingPaymentFailed = "booking.payment_failed"
	BookingRefunded      = "booking.refunded"
	PaymentUpdated       = "payment.updated"
)

// BookingActivatedEvent is published once a paid booking becomes an active rental.
type BookingActivatedEvent struct {
	BookingID        uuid.UUID `json:"booking_id"`
	CustomerID       uuid.UUID `json:"customer_id"`
	CarID            uuid.UUID `json:"car_id"`
	PaymentReference string    `json:"payment_reference"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// BookingPaymentFailedEvent is published when a booking is cancelled after a failed payment.
type BookingPaymentFailedEvent struct {
	BookingID        uuid.UUID `json:"booking_id"`
	CustomerID       uuid.UUID `json:"customer_id"`
	PaymentReference string    `json:"payment_reference"`
	Reason           string    `json:"reason"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// BookingRefundedEvent is published when an active rental is cancelled by a refund.
type BookingRefundedEvent struct {
	BookingID        uuid.UUID `json:"booking_id"`
	CustomerID       uuid.UUID `json:"customer_id"`
	CarID            uuid.UUID `json:"car_id"`
	PaymentReference string    `json:"payment_reference"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// PaymentUpdatedEvent is the webhook relay's notification that a payment changed.
// It carries identifiers only; the gateway remains the source of truth for status.
type PaymentUpdatedEvent struct {
	PaymentID  string `json:"paymentId"`
	BookingID  string `json:"bookingId"`
	CustomerID string `json:"customerId"`
}
