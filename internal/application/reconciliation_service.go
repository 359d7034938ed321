package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	bookingDomain "github.com/rentwheel/service-rental/internal/domain/booking"
	"github.com/rentwheel/service-rental/internal/domain/payment"
	"github.com/rentwheel/service-rental/pkg/domain"
	"github.com/rentwheel/service-rental/pkg/events"
	"github.com/rentwheel/service-rental/pkg/kafka"
)

const eventSource = "service-rental"

// VerifyPaymentRequest is the body of a payment verification call.
type VerifyPaymentRequest struct {
	PaymentID string `json:"paymentId"`
	BookingID string `json:"bookingId"`
}

// ReconciliationOutcome is returned to the caller after a reconciliation pass.
type ReconciliationOutcome struct {
	Success        bool   `json:"success"`
	Status         string `json:"status"`
	BookingStatus  string `json:"bookingStatus"`
	Message        string `json:"message"`
	TransactionURL string `json:"transactionUrl,omitempty"`
}

// EventPublisher publishes CloudEvents. Both the Kafka producer and the RabbitMQ
// publisher satisfy it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, ce kafka.CloudEvent) error
}

// ReconciliationService reads a payment from the gateway and applies its status to the
// owning booking.
type ReconciliationService struct {
	repo      bookingDomain.BookingRepository
	executor  bookingDomain.TransitionExecutor
	gateway   payment.Gateway
	publisher EventPublisher
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewReconciliationService creates a new ReconciliationService. publisher may be nil.
func NewReconciliationService(
	repo bookingDomain.BookingRepository,
	executor bookingDomain.TransitionExecutor,
	gateway payment.Gateway,
	publisher EventPublisher,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		repo:      repo,
		executor:  executor,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("service-rental/reconciliation"),
	}
}

// VerifyPayment validates the request and runs one reconciliation pass for the caller.
func (s *ReconciliationService) VerifyPayment(ctx context.Context, callerID uuid.UUID, req VerifyPaymentRequest) (*ReconciliationOutcome, error) {
	if err := checkRequest(callerID, req.BookingID != "", req.PaymentID); err != nil {
		return nil, err
	}
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, domain.NewValidationError("bookingId must be a valid UUID")
	}
	return s.reconcile(ctx, bookingID, callerID, req.PaymentID)
}

// checkRequest rejects anonymous callers before any malformed input is reported.
func checkRequest(callerID uuid.UUID, hasBooking bool, paymentID string) error {
	if callerID == uuid.Nil {
		return domain.NewUnauthorizedError("authentication required")
	}
	if paymentID == "" || !hasBooking {
		return domain.NewValidationError("paymentId and bookingId are required")
	}
	return nil
}

// Reconcile resolves the booking for the caller, fetches the payment, applies the matching
// transition and reports the gateway status together with the booking state read back
// afterwards. A failed transition is logged and does not fail the call.
func (s *ReconciliationService) Reconcile(ctx context.Context, bookingID, callerID uuid.UUID, paymentID string) (*ReconciliationOutcome, error) {
	if err := checkRequest(callerID, bookingID != uuid.Nil, paymentID); err != nil {
		return nil, err
	}
	return s.reconcile(ctx, bookingID, callerID, paymentID)
}

func (s *ReconciliationService) reconcile(ctx context.Context, bookingID, callerID uuid.UUID, paymentID string) (*ReconciliationOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "payment.reconcile",
		trace.WithAttributes(
			attribute.String("booking.id", bookingID.String()),
			attribute.String("payment.id", paymentID),
		),
	)
	defer span.End()

	snap, err := s.repo.ResolveForPaymentCheck(ctx, bookingID, callerID)
	if err != nil {
		span.SetStatus(codes.Error, "resolve booking")
		return nil, err
	}

	p, err := s.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch payment")
		s.logger.Warn("payment gateway read failed",
			zap.String("booking_id", bookingID.String()),
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return nil, err
	}
	if ref := p.BookingID(); ref != "" && ref != bookingID.String() {
		span.SetStatus(codes.Error, "payment mismatch")
		s.logger.Warn("payment belongs to another booking",
			zap.String("booking_id", bookingID.String()),
			zap.String("payment_id", paymentID),
			zap.String("payment_booking_id", ref),
		)
		return nil, domain.NewConflictError("payment does not belong to this booking")
	}

	decision := Decide(p, snap.State)
	span.SetAttributes(
		attribute.String("payment.status", string(p.Status)),
		attribute.String("reconcile.action", string(decision.Action)),
	)
	if !decision.Known {
		s.logger.Warn("unrecognized gateway status passed through",
			zap.String("booking_id", bookingID.String()),
			zap.String("payment_id", paymentID),
			zap.String("gateway_status", string(p.Status)),
		)
	}

	bookingStatus := snap.State
	if decision.Action != ActionNone {
		bookingStatus = s.applyTransition(ctx, span, decision.Action, snap, callerID, p)
	}

	outcome := &ReconciliationOutcome{
		Success:       true,
		Status:        string(p.Status),
		BookingStatus: string(bookingStatus),
		Message:       decision.Message,
	}
	if decision.Processing {
		outcome.TransactionURL = p.TransactionURL
	}

	s.logger.Info("payment reconciled",
		zap.String("booking_id", bookingID.String()),
		zap.String("payment_id", paymentID),
		zap.String("gateway_status", outcome.Status),
		zap.String("action", string(decision.Action)),
		zap.String("booking_status", outcome.BookingStatus),
	)
	return outcome, nil
}

// applyTransition runs the executor for action and returns the booking state read back
// from the data layer.
func (s *ReconciliationService) applyTransition(
	ctx context.Context,
	span trace.Span,
	action Action,
	snap *bookingDomain.Snapshot,
	callerID uuid.UUID,
	p *payment.Payment,
) bookingDomain.LifecycleState {
	var (
		res bookingDomain.TransitionResult
		err error
	)
	switch action {
	case ActionActivate:
		res, err = s.executor.Activate(ctx, snap.ID, p.ID, callerID, snap)
	case ActionFailPayment:
		res, err = s.executor.FailPayment(ctx, snap.ID, callerID, p.FailureMessage, p.ID)
	case ActionRefund:
		res, err = s.executor.Refund(ctx, snap.ID, callerID, p.ID)
	}

	if err != nil {
		span.RecordError(err)
		s.logger.Error("booking transition failed",
			zap.String("booking_id", snap.ID.String()),
			zap.String("payment_id", p.ID),
			zap.String("gateway_status", string(p.Status)),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	} else if res.Applied {
		s.publishTransition(ctx, action, snap, p)
	}

	current, rerr := s.repo.ResolveForPaymentCheck(ctx, snap.ID, callerID)
	if rerr != nil {
		s.logger.Error("failed to read back booking state",
			zap.String("booking_id", snap.ID.String()),
			zap.Error(rerr),
		)
		if err == nil && res.State != "" {
			return res.State
		}
		return snap.State
	}
	return current.State
}

func (s *ReconciliationService) publishTransition(ctx context.Context, action Action, snap *bookingDomain.Snapshot, p *payment.Payment) {
	now := time.Now().UTC()
	key := snap.ID.String()

	switch action {
	case ActionActivate:
		s.publishEvent(ctx, events.TopicBookingEvents, events.BookingActivated, key, events.BookingActivatedEvent{
			BookingID:        snap.ID,
			CustomerID:       snap.CustomerID,
			CarID:            snap.CarID,
			PaymentReference: p.ID,
			Amount:           snap.TotalAmount,
			Currency:         snap.Currency,
			OccurredAt:       now,
		})
	case ActionFailPayment:
		s.publishEvent(ctx, events.TopicBookingEvents, events.BookingPaymentFailed, key, events.BookingPaymentFailedEvent{
			BookingID:        snap.ID,
			CustomerID:       snap.CustomerID,
			PaymentReference: p.ID,
			Reason:           p.FailureMessage,
			OccurredAt:       now,
		})
	case ActionRefund:
		s.publishEvent(ctx, events.TopicBookingEvents, events.BookingRefunded, key, events.BookingRefundedEvent{
			BookingID:        snap.ID,
			CustomerID:       snap.CustomerID,
			CarID:            snap.CarID,
			PaymentReference: p.ID,
			Amount:           snap.TotalAmount,
			Currency:         snap.Currency,
			OccurredAt:       now,
		})
	}
}

func (s *ReconciliationService) publishEvent(ctx context.Context, topic, eventType, key string, data interface{}) {
	if s.publisher == nil {
		return
	}

	cloudEvent, err := kafka.NewCloudEvent(eventSource, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}

	if err := s.publisher.PublishEvent(ctx, topic, key, cloudEvent); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
