package webhook

import "github.com/noah-isme/pocketpay/internal/store"

// Provider event types this service reacts to. The set is closed on purpose:
// a new event type is a code change with a test, not a runtime registration.
const (
	EventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
)

// TransitionFor maps a provider event type to the ledger status it drives.
// Unknown event types return ok=false and are acknowledged without action.
func TransitionFor(eventType string) (store.PaymentStatus, bool) {
	switch eventType {
	case EventOrderApproved:
		return store.PaymentStatusProcessing, true
	case EventCaptureCompleted:
		return store.PaymentStatusCompleted, true
	case EventCaptureDenied:
		return store.PaymentStatusFailed, true
	default:
		return "", false
	}
}
