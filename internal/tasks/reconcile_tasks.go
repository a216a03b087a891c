package tasks

import (
	"context"
	"time"
)

// reconcileCutoff is how long a payment may sit in processing before the
// worker re-queries the gateway for its real outcome
const reconcileCutoff = 15 * time.Minute

// ReconcilePaymentsDef resolves payments stuck in processing, typically from
// lost webhooks or payers who never returned from the gateway
type ReconcilePaymentsDef struct{}

func (t *ReconcilePaymentsDef) TaskID() string {
	return "reconcile_payments"
}

func (t *ReconcilePaymentsDef) HandleExecution(ctx context.Context, deps Deps) (map[string]interface{}, error) {
	resolved, err := deps.Payments.ReconcileStuck(ctx, reconcileCutoff)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":   "success",
		"resolved": resolved,
	}, nil
}

// ReconcilePaymentsTask is the singleton instance of ReconcilePaymentsDef
var ReconcilePaymentsTask = &ReconcilePaymentsDef{}

// payoutReconcileCutoff is how long a payout may sit in processing before
// the worker polls the disbursement rail for its real outcome
const payoutReconcileCutoff = 30 * time.Minute

// ReconcilePayoutsDef resolves payouts stuck in processing, typically from
// pending rail approvals or a crash between disbursement and the ledger
// debit
type ReconcilePayoutsDef struct{}

func (t *ReconcilePayoutsDef) TaskID() string {
	return "reconcile_payouts"
}

func (t *ReconcilePayoutsDef) HandleExecution(ctx context.Context, deps Deps) (map[string]interface{}, error) {
	resolved, err := deps.Payouts.ReconcileProcessing(ctx, payoutReconcileCutoff)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":   "success",
		"resolved": resolved,
	}, nil
}

// ReconcilePayoutsTask is the singleton instance of ReconcilePayoutsDef
var ReconcilePayoutsTask = &ReconcilePayoutsDef{}
