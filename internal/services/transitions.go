package services

import (
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// Transition is the action finalize takes for one gateway decision
type Transition int

const (
	// TransitionNoop means the payment already reached a state that the
	// decision cannot legally change; duplicates and replays land here
	TransitionNoop Transition = iota
	TransitionProcessing
	TransitionComplete
	TransitionFail
)

// DecideTransition maps a gateway decision onto the payment state machine.
// It is pure so the race and replay behavior of finalize can be tested
// without a database.
func DecideTransition(current models.PaymentStatus, result *gateway.Result) Transition {
	switch {
	case result.Success:
		if current.CanTransitionTo(models.PaymentStatusCompleted) {
			return TransitionComplete
		}
		return TransitionNoop
	case result.Pending:
		if current == models.PaymentStatusPending {
			return TransitionProcessing
		}
		return TransitionNoop
	default:
		if current.CanTransitionTo(models.PaymentStatusFailed) {
			return TransitionFail
		}
		return TransitionNoop
	}
}
