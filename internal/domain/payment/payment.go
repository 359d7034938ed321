package payment

import "context"

// Status is the gateway-reported payment status. Values outside the known set are
// passed through verbatim.
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusAuthorized Status = "authorized"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// MetadataBookingID is the metadata key the checkout flow stamps on every payment.
const MetadataBookingID = "booking_id"

// Payment is a read-only view of a payment record held by the external gateway.
type Payment struct {
	ID             string
	Status         Status
	Amount         int64
	Currency       string
	FailureMessage string
	TransactionURL string
	Metadata       map[string]string
}

// BookingID returns the booking id stamped on the payment, or "" if absent.
func (p *Payment) BookingID() string {
	if p.Metadata == nil {
		return ""
	}
	return p.Metadata[MetadataBookingID]
}

// Gateway reads payment records from the external processor. Implementations perform
// a single read per call and never retry.
type Gateway interface {
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
}
