package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

func TestDecideTransition(t *testing.T) {
	success := &gateway.Result{Success: true}
	pending := &gateway.Result{Pending: true}
	declined := gateway.Failure("card declined", "05")

	tests := []struct {
		name    string
		current models.PaymentStatus
		result  *gateway.Result
		want    Transition
	}{
		{"success from pending", models.PaymentStatusPending, success, TransitionComplete},
		{"success from processing", models.PaymentStatusProcessing, success, TransitionComplete},
		{"decline from pending", models.PaymentStatusPending, declined, TransitionFail},
		{"decline from processing", models.PaymentStatusProcessing, declined, TransitionFail},
		{"pending moves to processing", models.PaymentStatusPending, pending, TransitionProcessing},
		{"pending result on processing is noop", models.PaymentStatusProcessing, pending, TransitionNoop},

		// replays of a settled outcome change nothing
		{"success replay on completed", models.PaymentStatusCompleted, success, TransitionNoop},
		{"decline replay on failed", models.PaymentStatusFailed, declined, TransitionNoop},

		// a late contradictory decision never reopens a settled payment
		{"decline after completion", models.PaymentStatusCompleted, declined, TransitionNoop},
		{"success after failure", models.PaymentStatusFailed, success, TransitionNoop},
		{"success after refund", models.PaymentStatusRefunded, success, TransitionNoop},
		{"decline after partial refund", models.PaymentStatusPartiallyRefunded, declined, TransitionNoop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideTransition(tt.current, tt.result))
		})
	}
}

// A webhook and a synchronous callback racing to complete the same payment
// must produce exactly one completion: whichever lands first completes, the
// other becomes a noop against the new state.
func TestDecideTransitionRaceConverges(t *testing.T) {
	success := &gateway.Result{Success: true}

	first := DecideTransition(models.PaymentStatusProcessing, success)
	assert.Equal(t, TransitionComplete, first)

	second := DecideTransition(models.PaymentStatusCompleted, success)
	assert.Equal(t, TransitionNoop, second)
}
