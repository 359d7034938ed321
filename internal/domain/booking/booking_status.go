package booking

import "fmt"

// LifecycleState represents the current state of a rental booking.
type LifecycleState string

const (
	StatePending        LifecycleState = "pending"
	StateConfirmed      LifecycleState = "confirmed"
	StatePaymentPending LifecycleState = "payment_pending"
	StateActive         LifecycleState = "active"
	StateCompleted      LifecycleState = "completed"
	StateCancelled      LifecycleState = "cancelled"
	StateRejected       LifecycleState = "rejected"
	StateExpired        LifecycleState = "expired"
)

// validTransitions defines the booking lifecycle. Transitions only move forward;
// active -> cancelled is the refund path.
var validTransitions = map[LifecycleState][]LifecycleState{
	StatePending:        {StateConfirmed, StatePaymentPending, StateCancelled, StateRejected, StateExpired},
	StateConfirmed:      {StatePaymentPending, StateCancelled, StateExpired},
	StatePaymentPending: {StateActive, StateCancelled, StateExpired},
	StateActive:         {StateCompleted, StateCancelled},
	StateCompleted:      {},
	StateCancelled:      {},
	StateRejected:       {},
	StateExpired:        {},
}

// IsValid returns true if the state is a recognized lifecycle state.
func (s LifecycleState) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this state to the target is allowed.
func (s LifecycleState) CanTransitionTo(target LifecycleState) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this state.
func (s LifecycleState) IsTerminal() bool {
	allowed, exists := validTransitions[s]
	return !exists || len(allowed) == 0
}

// String returns the string representation of the state.
func (s LifecycleState) String() string {
	return string(s)
}

// ParseLifecycleState converts a string to a LifecycleState, returning an error if invalid.
func ParseLifecycleState(s string) (LifecycleState, error) {
	state := LifecycleState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("invalid lifecycle state: %s", s)
	}
	return state, nil
}
