package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// payoutHoldingPeriod keeps just-settled escrow funds out of payout batches
// so same-day refunds reverse against the ledger instead of a sent payout.
const payoutHoldingPeriod = 48 * time.Hour

// RunPayoutSweepDef batches and disburses accrued escrow settlements for
// every eligible provider
type RunPayoutSweepDef struct{}

func (t *RunPayoutSweepDef) TaskID() string {
	return "run_payout_sweep"
}

func (t *RunPayoutSweepDef) HandleExecution(ctx context.Context, deps Deps) (map[string]interface{}, error) {
	if err := deps.Payouts.Run(ctx, payoutHoldingPeriod); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "success"}, nil
}

// RunPayoutSweepTask is the singleton instance of RunPayoutSweepDef
var RunPayoutSweepTask = &RunPayoutSweepDef{}

// RunScheduledPayoutsDef executes provider payout schedules that have come
// due and advances each schedule's next run
type RunScheduledPayoutsDef struct{}

func (t *RunScheduledPayoutsDef) TaskID() string {
	return "run_scheduled_payouts"
}

func (t *RunScheduledPayoutsDef) HandleExecution(ctx context.Context, deps Deps) (map[string]interface{}, error) {
	if err := deps.Payouts.RunDueSchedules(ctx, payoutHoldingPeriod); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "success"}, nil
}

// RunScheduledPayoutsTask is the singleton instance of RunScheduledPayoutsDef
var RunScheduledPayoutsTask = &RunScheduledPayoutsDef{}

// VerifyLedgersDef replays every provider's journal and flags any snapshot
// that does not reproduce from the entries
type VerifyLedgersDef struct{}

func (t *VerifyLedgersDef) TaskID() string {
	return "verify_ledgers"
}

func (t *VerifyLedgersDef) HandleExecution(ctx context.Context, deps Deps) (map[string]interface{}, error) {
	var providerIDs []uint
	if err := deps.DB.WithContext(ctx).
		Table("ledger_entries").Distinct("provider_id").
		Pluck("provider_id", &providerIDs).Error; err != nil {
		return nil, err
	}

	corrupt := 0
	for _, id := range providerIDs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, err := deps.Ledger.Replay(ctx, id); err != nil {
			corrupt++
			deps.Logger.Error("ledger replay mismatch",
				zap.Uint("provider_id", id), zap.Error(err))
		}
	}

	return map[string]interface{}{
		"status":    "success",
		"providers": len(providerIDs),
		"corrupt":   corrupt,
	}, nil
}

// VerifyLedgersTask is the singleton instance of VerifyLedgersDef
var VerifyLedgersTask = &VerifyLedgersDef{}
