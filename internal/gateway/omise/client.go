package omise

import (
	"context"
	"errors"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"go.uber.org/zap"

	"github.com/rentwheel/service-rental/internal/domain/payment"
	"github.com/rentwheel/service-rental/pkg/domain"
)

// chargeStatuses maps Omise charge statuses onto gateway payment statuses.
// Anything else is passed through unchanged. A reversed charge is a voided
// authorization that was never captured. Refunds keep the charge successful and
// are detected from the refunded amount in chargeStatus.
var chargeStatuses = map[string]payment.Status{
	"successful": payment.StatusPaid,
	"failed":     payment.StatusFailed,
	"pending":    payment.StatusInitiated,
	"reversed":   payment.StatusFailed,
}

// Client reads charges from Omise and presents them as payments.
type Client struct {
	retrieve func(chargeID string) (*omise.Charge, error)
	logger   *zap.Logger
}

// NewClient creates a Client using the public and secret keys.
func NewClient(publicKey, secretKey string, logger *zap.Logger) (*Client, error) {
	oc, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	oc.SetDebug(false)

	return &Client{
		retrieve: func(chargeID string) (*omise.Charge, error) {
			ch := &omise.Charge{}
			if err := oc.Do(ch, &operations.RetrieveCharge{ChargeID: chargeID}); err != nil {
				return nil, err
			}
			return ch, nil
		},
		logger: logger,
	}, nil
}

// FetchPayment retrieves the charge with the given id.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	if paymentID == "" {
		return nil, domain.NewValidationError("paymentId is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewGatewayUnavailableError(0, err)
	}

	ch, err := c.retrieve(paymentID)
	if err != nil {
		var oe *omise.Error
		if errors.As(err, &oe) {
			c.logger.Warn("omise returned error",
				zap.String("payment_id", paymentID),
				zap.Int("upstream_status", oe.StatusCode),
				zap.String("code", oe.Code),
			)
			return nil, domain.NewGatewayUnavailableError(oe.StatusCode, err)
		}
		return nil, domain.NewGatewayUnavailableError(0, err)
	}
	if ch == nil || ch.ID == "" {
		return nil, domain.NewGatewayProtocolError(errors.New("charge response missing id"))
	}
	return toPayment(ch), nil
}

func chargeStatus(ch *omise.Charge) payment.Status {
	raw := string(ch.Status)
	status, ok := chargeStatuses[raw]
	if !ok {
		return payment.Status(raw)
	}

	switch {
	case status == payment.StatusPaid && ch.Amount > 0 && ch.RefundedAmount >= ch.Amount:
		return payment.StatusRefunded
	case status == payment.StatusInitiated && ch.Authorized:
		return payment.StatusAuthorized
	}
	return status
}

func toPayment(ch *omise.Charge) *payment.Payment {
	status := chargeStatus(ch)

	p := &payment.Payment{
		ID:             ch.ID,
		Status:         status,
		Amount:         ch.Amount,
		Currency:       ch.Currency,
		TransactionURL: ch.AuthorizeURI,
		Metadata:       map[string]string{},
	}
	if ch.FailureMessage != nil {
		p.FailureMessage = *ch.FailureMessage
	}
	for k, v := range ch.Metadata {
		if s, ok := v.(string); ok {
			p.Metadata[k] = s
		}
	}
	return p
}
