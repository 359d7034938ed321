package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bookingDomain "github.com/rentwheel/service-rental/internal/domain/booking"
	"github.com/rentwheel/service-rental/pkg/domain"
)

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID               uuid.UUID       `json:"id"`
	BookingNumber    string          `json:"booking_number"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	CarID            uuid.UUID       `json:"car_id"`
	BranchID         *uuid.UUID      `json:"branch_id,omitempty"`
	LifecycleState   string          `json:"lifecycle_state"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	Pricing          json.RawMessage `json:"pricing,omitempty"`
	TotalAmount      int64           `json:"total_amount"`
	Currency         string          `json:"currency"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	ActivatedAt      *time.Time      `json:"activated_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// LedgerEntryDTO is the response representation of a payment ledger row.
type LedgerEntryDTO struct {
	Kind             string    `json:"kind"`
	PaymentReference string    `json:"payment_reference"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// BookingService serves read-side booking use cases.
type BookingService struct {
	repo   bookingDomain.BookingRepository
	logger *zap.Logger
}

// NewBookingService creates a new BookingService.
func NewBookingService(repo bookingDomain.BookingRepository, logger *zap.Logger) *BookingService {
	return &BookingService{repo: repo, logger: logger}
}

// GetCustomerBooking returns a booking owned by customerID. Foreign and missing
// bookings are indistinguishable to the caller.
func (s *BookingService) GetCustomerBooking(ctx context.Context, bookingID, customerID uuid.UUID) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil, domain.ErrNotFoundOrUnauthorized
		}
		return nil, err
	}
	if bk.CustomerID() != customerID {
		s.logger.Debug("booking read by non-owner",
			zap.String("booking_id", bookingID.String()),
			zap.String("user_id", customerID.String()),
		)
		return nil, domain.ErrNotFoundOrUnauthorized
	}

	result := toBookingDTO(bk)
	return &result, nil
}

// --- Admin methods ---

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByState       map[string]int64 `json:"by_state"`
}

// ListAllBookings returns a paginated list of all bookings (admin).
func (s *BookingService) ListAllBookings(ctx context.Context, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	bookings, total, err := s.repo.ListAll(ctx, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}
	result := domain.NewPaginatedResult(dtos, total, page, limit)
	return &result, nil
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *BookingService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	counts, err := s.repo.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	return &BookingStatsDTO{
		TotalBookings: total,
		ByState:       counts,
	}, nil
}

// GetBookingLedger returns the payment ledger of any booking (admin).
func (s *BookingService) GetBookingLedger(ctx context.Context, bookingID uuid.UUID) ([]LedgerEntryDTO, error) {
	if _, err := s.repo.FindByID(ctx, bookingID); err != nil {
		return nil, err
	}
	entries, err := s.repo.LedgerEntries(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LedgerEntryDTO{
			Kind:             e.Kind,
			PaymentReference: e.PaymentReference,
			Amount:           e.Amount,
			Currency:         e.Currency,
			Reason:           e.Reason,
			CreatedAt:        e.CreatedAt,
		}
	}
	return dtos, nil
}

// --- Helpers ---

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:               bk.ID(),
		BookingNumber:    bk.BookingNumber(),
		CustomerID:       bk.CustomerID(),
		CarID:            bk.CarID(),
		BranchID:         bk.BranchID(),
		LifecycleState:   string(bk.State()),
		PaymentReference: bk.PaymentReference(),
		Pricing:          bk.Pricing(),
		TotalAmount:      bk.TotalAmount(),
		Currency:         bk.Currency(),
		StartDate:        bk.StartDate(),
		EndDate:          bk.EndDate(),
		FailureReason:    bk.FailureReason(),
		ActivatedAt:      bk.ActivatedAt(),
		CancelledAt:      bk.CancelledAt(),
		Version:          bk.Version(),
		CreatedAt:        bk.CreatedAt(),
		UpdatedAt:        bk.UpdatedAt(),
	}
}
