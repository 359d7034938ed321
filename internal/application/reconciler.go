package application

import (
	"fmt"

	bookingDomain "github.com/rentwheel/service-rental/internal/domain/booking"
	"github.com/rentwheel/service-rental/internal/domain/payment"
)

// Action is the lifecycle transition chosen for a gateway status.
type Action string

const (
	ActionNone        Action = "none"
	ActionActivate    Action = "activate"
	ActionFailPayment Action = "fail_payment"
	ActionRefund      Action = "refund"
)

// reconciliationRule is one row of the gateway-status table. The action runs only when
// the precondition holds for the current booking state; otherwise the booking is
// considered already reconciled.
type reconciliationRule struct {
	action       Action
	precondition func(bookingDomain.LifecycleState) bool
	message      func(p *payment.Payment) string
	processing   bool
}

var reconciliationRules = map[payment.Status]reconciliationRule{
	payment.StatusPaid: {
		action:       ActionActivate,
		precondition: func(s bookingDomain.LifecycleState) bool { return s != bookingDomain.StateActive },
		message:      func(*payment.Payment) string { return "Payment successful. Your rental is now active." },
	},
	payment.StatusFailed: {
		action:       ActionFailPayment,
		precondition: func(s bookingDomain.LifecycleState) bool { return s == bookingDomain.StatePaymentPending },
		message: func(p *payment.Payment) string {
			if p.FailureMessage != "" {
				return "Payment failed: " + p.FailureMessage
			}
			return "Payment failed."
		},
	},
	payment.StatusInitiated: {
		action:     ActionNone,
		message:    func(*payment.Payment) string { return "Payment is still processing." },
		processing: true,
	},
	payment.StatusAuthorized: {
		action:     ActionNone,
		message:    func(*payment.Payment) string { return "Payment is still processing." },
		processing: true,
	},
	payment.StatusRefunded: {
		action:       ActionRefund,
		precondition: func(s bookingDomain.LifecycleState) bool { return s == bookingDomain.StateActive },
		message:      func(*payment.Payment) string { return "Payment refunded. Your booking has been cancelled." },
	},
}

// Decision is the reconciler's verdict for one payment/booking pair.
type Decision struct {
	Action     Action
	Message    string
	Processing bool
	Known      bool
}

// Decide looks up the gateway status and checks the precondition against state.
// Unknown statuses produce ActionNone and are passed through verbatim.
func Decide(p *payment.Payment, state bookingDomain.LifecycleState) Decision {
	rule, ok := reconciliationRules[p.Status]
	if !ok {
		return Decision{
			Action:  ActionNone,
			Message: fmt.Sprintf("Payment status: %s", p.Status),
		}
	}

	d := Decision{
		Action:     rule.action,
		Message:    rule.message(p),
		Processing: rule.processing,
		Known:      true,
	}
	if rule.precondition != nil && !rule.precondition(state) {
		d.Action = ActionNone
	}
	return d
}
