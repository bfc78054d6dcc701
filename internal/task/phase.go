package task

import "errors"

// Phase is one step of the purchase sequence. Phases run in declaration order;
// a failed phase is retried, never skipped or rewound.
type Phase int

const (
	PhaseCartFill       Phase = iota // Put every product into the cart
	PhaseSessionAcquire              // Extract session_uid from the cart page
	PhaseCheckoutEntry               // Open the checkout for that session
	PhasePriceGate                   // Wait for total <= limit
	PhaseOrderCreate                 // Submit the order
	PhaseDone
)

// ErrPriceAboveLimit marks a price gate attempt that observed a total above
// the task's limit. It is retried exactly like a remote failure.
var ErrPriceAboveLimit = errors.New("cart total price is more than limit")

func (p Phase) String() string {
	switch p {
	case PhaseCartFill:
		return "cart_fill"
	case PhaseSessionAcquire:
		return "session_acquire"
	case PhaseCheckoutEntry:
		return "checkout_entry"
	case PhasePriceGate:
		return "price_gate"
	case PhaseOrderCreate:
		return "order_create"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}
