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
	"gorm.io/gorm/clause"

	bookingDomain "github.com/rentwheel/service-rental/internal/domain/booking"
	"github.com/rentwheel/service-rental/pkg/domain"
)

// Ledger entry kinds. The (booking_id, kind) pair is unique.
const (
	LedgerActivation    = "activation"
	LedgerPaymentFailed = "payment_failed"
	LedgerRefund        = "refund"
)

// CarInventoryModel is the GORM model for the car_inventory table.
type CarInventoryModel struct {
	CarID       uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BranchID    *uuid.UUID `gorm:"type:uuid"`
	TotalUnits  int        `gorm:"not null"`
	HeldUnits   int        `gorm:"not null"`
	RentedUnits int        `gorm:"not null"`
	UpdatedAt   time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (CarInventoryModel) TableName() string {
	return "car_inventory"
}

// LedgerModel is the GORM model for the payment_ledger table.
type LedgerModel struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey"`
	BookingID        uuid.UUID      `gorm:"type:uuid;not null"`
	Kind             string         `gorm:"not null;size:30"`
	PaymentReference string         `gorm:"not null;size:100"`
	Amount           int64          `gorm:"not null"`
	Currency         string         `gorm:"not null;size:3"`
	Reason           *string        `gorm:"size:500"`
	Metadata         datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt        time.Time      `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (LedgerModel) TableName() string {
	return "payment_ledger"
}

// inventoryDelta adjusts the held and rented counters of a car.
type inventoryDelta struct {
	held   int
	rented int
}

// transitionFn mutates the locked booking and returns the side effects to apply when it changed.
type transitionFn func(bk *bookingDomain.Booking) (changed bool, effects *sideEffects, err error)

type sideEffects struct {
	inventory inventoryDelta
	ledger    LedgerModel
}

// Activate moves the booking to active, converts the inventory hold into a rental and
// records the activation in the ledger.
func (r *GormBookingRepository) Activate(
	ctx context.Context,
	bookingID uuid.UUID,
	paymentRef string,
	customerID uuid.UUID,
	snapshot *bookingDomain.Snapshot,
) (bookingDomain.TransitionResult, error) {
	return r.transition(ctx, bookingID, customerID, func(bk *bookingDomain.Booking) (bool, *sideEffects, error) {
		held := bk.InventoryHeld()
		changed, err := bk.Activate(paymentRef)
		if err != nil || !changed {
			return changed, nil, err
		}

		delta := inventoryDelta{rented: 1}
		if held {
			delta.held = -1
		}

		pricing, amount, currency := json.RawMessage(bk.Pricing()), bk.TotalAmount(), bk.Currency()
		if snapshot != nil {
			pricing, amount, currency = snapshot.Pricing, snapshot.TotalAmount, snapshot.Currency
		}
		return true, &sideEffects{
			inventory: delta,
			ledger:    newLedgerEntry(bk.ID(), LedgerActivation, paymentRef, amount, currency, "", pricing),
		}, nil
	})
}

// FailPayment cancels the booking, records the failure reason and releases the hold.
func (r *GormBookingRepository) FailPayment(
	ctx context.Context,
	bookingID, customerID uuid.UUID,
	reason, paymentRef string,
) (bookingDomain.TransitionResult, error) {
	return r.transition(ctx, bookingID, customerID, func(bk *bookingDomain.Booking) (bool, *sideEffects, error) {
		held := bk.InventoryHeld()
		changed, err := bk.FailPayment(reason, paymentRef)
		if err != nil || !changed {
			return changed, nil, err
		}

		var delta inventoryDelta
		if held {
			delta.held = -1
		}
		return true, &sideEffects{
			inventory: delta,
			ledger: newLedgerEntry(bk.ID(), LedgerPaymentFailed, paymentRef,
				bk.TotalAmount(), bk.Currency(), bk.FailureReason(), nil),
		}, nil
	})
}

// Refund cancels an active booking and returns the rented unit to inventory.
func (r *GormBookingRepository) Refund(
	ctx context.Context,
	bookingID, customerID uuid.UUID,
	paymentRef string,
) (bookingDomain.TransitionResult, error) {
	return r.transition(ctx, bookingID, customerID, func(bk *bookingDomain.Booking) (bool, *sideEffects, error) {
		changed, err := bk.Refund(paymentRef)
		if err != nil || !changed {
			return changed, nil, err
		}
		return true, &sideEffects{
			inventory: inventoryDelta{rented: -1},
			ledger: newLedgerEntry(bk.ID(), LedgerRefund, paymentRef,
				bk.TotalAmount(), bk.Currency(), "", nil),
		}, nil
	})
}

// transition runs fn against the booking row locked FOR UPDATE. The lock serializes
// concurrent reconciliations of one booking: the second caller observes the committed
// state and fn reports no change.
func (r *GormBookingRepository) transition(
	ctx context.Context,
	bookingID, customerID uuid.UUID,
	fn transitionFn,
) (bookingDomain.TransitionResult, error) {
	var result bookingDomain.TransitionResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model BookingModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND customer_id = ?", bookingID, customerID).
			First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFoundOrUnauthorized
			}
			return fmt.Errorf("failed to lock booking: %w", err)
		}

		bk, err := toDomainBooking(&model)
		if err != nil {
			return err
		}

		changed, effects, err := fn(bk)
		if err != nil {
			return err
		}
		result.State = bk.State()
		if !changed {
			return nil
		}

		bk.IncrementVersion()
		if err := update(tx, bk); err != nil {
			return err
		}
		if err := applyInventory(tx, bk.CarID(), effects.inventory); err != nil {
			return err
		}
		if err := tx.Create(&effects.ledger).Error; err != nil {
			return fmt.Errorf("failed to record %s ledger entry: %w", effects.ledger.Kind, err)
		}
		result.Applied = true
		return nil
	})
	if err != nil {
		return bookingDomain.TransitionResult{}, err
	}
	return result, nil
}

// applyInventory adjusts the car's counters. Cars without an inventory row are not
// tracked and are left alone. Counters are clamped at zero.
func applyInventory(tx *gorm.DB, carID uuid.UUID, delta inventoryDelta) error {
	if delta.held == 0 && delta.rented == 0 {
		return nil
	}

	var inv CarInventoryModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("car_id = ?", carID).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to lock car inventory: %w", err)
	}

	held := max(inv.HeldUnits+delta.held, 0)
	rented := max(inv.RentedUnits+delta.rented, 0)
	if held+rented > inv.TotalUnits {
		return domain.NewConflictError("car inventory exhausted")
	}

	if err := tx.Model(&CarInventoryModel{}).
		Where("car_id = ?", carID).
		Updates(map[string]interface{}{
			"held_units":   held,
			"rented_units": rented,
			"updated_at":   time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("failed to update car inventory: %w", err)
	}
	return nil
}

func newLedgerEntry(bookingID uuid.UUID, kind, paymentRef string, amount int64, currency, reason string, pricing json.RawMessage) LedgerModel {
	meta := map[string]json.RawMessage{}
	if len(pricing) > 0 {
		meta["pricing"] = pricing
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte(`{}`)
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	return LedgerModel{
		ID:               uuid.New(),
		BookingID:        bookingID,
		Kind:             kind,
		PaymentReference: paymentRef,
		Amount:           amount,
		Currency:         currency,
		Reason:           reasonPtr,
		Metadata:         datatypes.JSON(metaJSON),
		CreatedAt:        time.Now().UTC(),
	}
}

// LedgerEntries returns the ledger rows recorded for a booking, oldest first.
func (r *GormBookingRepository) LedgerEntries(ctx context.Context, bookingID uuid.UUID) ([]bookingDomain.LedgerEntry, error) {
	var models []LedgerModel
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	entries := make([]bookingDomain.LedgerEntry, len(models))
	for i, m := range models {
		entries[i] = bookingDomain.LedgerEntry{
			Kind:             m.Kind,
			PaymentReference: m.PaymentReference,
			Amount:           m.Amount,
			Currency:         m.Currency,
			CreatedAt:        m.CreatedAt,
		}
		if m.Reason != nil {
			entries[i].Reason = *m.Reason
		}
	}
	return entries, nil
}
