package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rentwheel/service-rental/internal/application"
	"github.com/rentwheel/service-rental/pkg/domain"
	"github.com/rentwheel/service-rental/pkg/events"
	"github.com/rentwheel/service-rental/pkg/kafka"
)

// Reconciler runs one reconciliation pass for a booking on behalf of its owner.
type Reconciler interface {
	Reconcile(ctx context.Context, bookingID, callerID uuid.UUID, paymentID string) (*application.ReconciliationOutcome, error)
}

// Deduper suppresses duplicate webhook deliveries.
type Deduper interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// PaymentWebhookConsumer listens to relayed gateway webhooks and reconciles the
// referenced booking. The webhook only says "look again"; the gateway read inside the
// reconciliation pass decides the outcome.
type PaymentWebhookConsumer struct {
	consumer   *kafka.Consumer
	reconciler Reconciler
	dedupe     Deduper
	logger     *zap.Logger
}

// NewPaymentWebhookConsumer creates a new PaymentWebhookConsumer. dedupe may be nil.
func NewPaymentWebhookConsumer(
	brokers []string,
	groupID string,
	reconciler Reconciler,
	dedupe Deduper,
	logger *zap.Logger,
) *PaymentWebhookConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, events.TopicPaymentWebhooks, logger)
	return &PaymentWebhookConsumer{
		consumer:   consumer,
		reconciler: reconciler,
		dedupe:     dedupe,
		logger:     logger,
	}
}

// Start begins consuming webhook events. This blocks until the context is cancelled.
func (c *PaymentWebhookConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *PaymentWebhookConsumer) Close() error {
	return c.consumer.Close()
}

func (c *PaymentWebhookConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from webhook topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case events.PaymentUpdated:
		return c.handlePaymentUpdated(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled webhook event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *PaymentWebhookConsumer) handlePaymentUpdated(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	var evt events.PaymentUpdatedEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse PaymentUpdatedEvent data", zap.Error(err))
		return nil
	}

	bookingID, berr := uuid.Parse(evt.BookingID)
	customerID, cerr := uuid.Parse(evt.CustomerID)
	if berr != nil || cerr != nil || evt.PaymentID == "" {
		c.logger.Warn("dropping webhook with invalid identifiers",
			zap.String("event_id", cloudEvent.ID),
			zap.String("booking_id", evt.BookingID),
			zap.String("payment_id", evt.PaymentID),
		)
		return nil
	}

	if c.dedupe != nil {
		first, err := c.dedupe.FirstSeen(ctx, cloudEvent.ID)
		if err != nil {
			c.logger.Warn("dedupe unavailable, processing anyway", zap.Error(err))
		} else if !first {
			c.logger.Debug("skipping duplicate webhook delivery",
				zap.String("event_id", cloudEvent.ID),
			)
			return nil
		}
	}

	outcome, err := c.reconciler.Reconcile(ctx, bookingID, customerID, evt.PaymentID)
	if err != nil {
		if isPermanent(err) {
			c.logger.Warn("webhook reconciliation rejected",
				zap.String("booking_id", evt.BookingID),
				zap.String("payment_id", evt.PaymentID),
				zap.Error(err),
			)
			return nil
		}
		c.forget(ctx, cloudEvent.ID)
		c.logger.Warn("webhook reconciliation failed, will retry",
			zap.String("booking_id", evt.BookingID),
			zap.String("payment_id", evt.PaymentID),
			zap.Error(err),
		)
		return err
	}

	c.logger.Info("booking reconciled from webhook",
		zap.String("booking_id", evt.BookingID),
		zap.String("payment_id", evt.PaymentID),
		zap.String("gateway_status", outcome.Status),
		zap.String("booking_status", outcome.BookingStatus),
	)
	return nil
}

// isPermanent reports whether a redelivery of the same webhook would fail the same way.
func isPermanent(err error) bool {
	if domain.IsNotFoundOrUnauthorized(err) {
		return true
	}
	var validationErr *domain.ValidationError
	var unauthorizedErr *domain.UnauthorizedError
	var conflictErr *domain.ConflictError
	return errors.As(err, &validationErr) ||
		errors.As(err, &unauthorizedErr) ||
		errors.As(err, &conflictErr)
}

func (c *PaymentWebhookConsumer) forget(ctx context.Context, key string) {
	if c.dedupe == nil {
		return
	}
	if err := c.dedupe.Forget(ctx, key); err != nil {
		c.logger.Warn("failed to clear dedupe key", zap.String("event_id", key), zap.Error(err))
	}
}
