package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	bookingDomain "github.com/rentwheel/service-rental/internal/domain/booking"
	"github.com/rentwheel/service-rental/pkg/domain"
)

// BookingModel is the GORM model for the bookings table.
type BookingModel struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey"`
	BookingNumber    string         `gorm:"uniqueIndex;not null;size:20"`
	CustomerID       uuid.UUID      `gorm:"type:uuid;index;not null"`
	CarID            uuid.UUID      `gorm:"type:uuid;not null"`
	BranchID         *uuid.UUID     `gorm:"type:uuid"`
	LifecycleState   string         `gorm:"not null;size:30;index"`
	PaymentReference *string        `gorm:"size:100;index"`
	PricingSnapshot  datatypes.JSON `gorm:"type:jsonb;not null"`
	TotalAmount      int64          `gorm:"not null"`
	Currency         string         `gorm:"not null;size:3;default:'SAR'"`
	StartDate        time.Time      `gorm:"not null"`
	EndDate          time.Time      `gorm:"not null"`
	InventoryHeld    bool           `gorm:"not null"`
	FailureReason    *string        `gorm:"size:500"`
	ActivatedAt      *time.Time     `gorm:""`
	CancelledAt      *time.Time     `gorm:""`
	Version          int64          `gorm:"not null;default:1"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// GormBookingRepository is the GORM-based implementation of BookingRepository and
// TransitionExecutor.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// ResolveForPaymentCheck reads a booking in a single query filtered by id and owner.
func (r *GormBookingRepository) ResolveForPaymentCheck(ctx context.Context, bookingID, customerID uuid.UUID) (*bookingDomain.Snapshot, error) {
	var model BookingModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND customer_id = ?", bookingID, customerID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFoundOrUnauthorized
		}
		return nil, fmt.Errorf("failed to resolve booking for payment check: %w", err)
	}

	bk, err := toDomainBooking(&model)
	if err != nil {
		return nil, err
	}
	snap := bk.Snapshot()
	return &snap, nil
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

// Save persists a new booking.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// ListAll retrieves all bookings with pagination (admin).
func (r *GormBookingRepository) ListAll(ctx context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, 0, err
		}
		bookings[i] = bk
	}

	return bookings, total, nil
}

// CountByState returns booking counts grouped by lifecycle state (admin).
func (r *GormBookingRepository) CountByState(ctx context.Context) (map[string]int64, error) {
	type stateCount struct {
		LifecycleState string
		Count          int64
	}
	var results []stateCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("lifecycle_state, count(*) as count").
		Group("lifecycle_state").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by state: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.LifecycleState] = sc.Count
	}
	return counts, nil
}

// update persists changes to an existing booking with optimistic locking.
func update(tx *gorm.DB, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)

	// IncrementVersion was called, so the stored row still carries version-1.
	expectedVersion := bk.Version() - 1
	result := tx.
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"lifecycle_state":   model.LifecycleState,
			"payment_reference": model.PaymentReference,
			"inventory_held":    model.InventoryHeld,
			"failure_reason":    model.FailureReason,
			"activated_at":      model.ActivatedAt,
			"cancelled_at":      model.CancelledAt,
			"version":           model.Version,
			"updated_at":        model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update booking: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}
	return nil
}

// --- Conversion Helpers ---

func toBookingModel(bk *bookingDomain.Booking) *BookingModel {
	var failureReason *string
	if reason := bk.FailureReason(); reason != "" {
		failureReason = &reason
	}
	pricing := bk.Pricing()
	if len(pricing) == 0 {
		pricing = json.RawMessage(`{}`)
	}

	return &BookingModel{
		ID:               bk.ID(),
		BookingNumber:    bk.BookingNumber(),
		CustomerID:       bk.CustomerID(),
		CarID:            bk.CarID(),
		BranchID:         bk.BranchID(),
		LifecycleState:   string(bk.State()),
		PaymentReference: bk.PaymentReference(),
		PricingSnapshot:  datatypes.JSON(pricing),
		TotalAmount:      bk.TotalAmount(),
		Currency:         bk.Currency(),
		StartDate:        bk.StartDate(),
		EndDate:          bk.EndDate(),
		InventoryHeld:    bk.InventoryHeld(),
		FailureReason:    failureReason,
		ActivatedAt:      bk.ActivatedAt(),
		CancelledAt:      bk.CancelledAt(),
		Version:          bk.Version(),
		CreatedAt:        bk.CreatedAt(),
		UpdatedAt:        bk.UpdatedAt(),
	}
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	state, err := bookingDomain.ParseLifecycleState(m.LifecycleState)
	if err != nil {
		return nil, err
	}

	var failureReason string
	if m.FailureReason != nil {
		failureReason = *m.FailureReason
	}

	return bookingDomain.ReconstructBooking(
		m.ID,
		m.BookingNumber,
		m.CustomerID,
		m.CarID,
		m.BranchID,
		state,
		m.PaymentReference,
		json.RawMessage(m.PricingSnapshot),
		m.TotalAmount,
		m.Currency,
		m.StartDate,
		m.EndDate,
		m.InventoryHeld,
		failureReason,
		m.ActivatedAt,
		m.CancelledAt,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}
