package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// PayoutService batches escrow-settled payments into disbursements. Only
// escrow settlements flow through here; direct-split gateways already moved
// the provider's share at charge time.
type PayoutService struct {
	db        *gorm.DB
	redis     *RedisStore
	ledger    *LedgerService
	disburser gateway.Disburser
	logger    *zap.Logger
}

func NewPayoutService(db *gorm.DB, redis *RedisStore, ledger *LedgerService, disburser gateway.Disburser, logger *zap.Logger) *PayoutService {
	return &PayoutService{db: db, redis: redis, ledger: ledger, disburser: disburser, logger: logger}
}

// SumProviderAmounts totals the provider share of a batch. It is pure so
// batch-amount arithmetic is testable without a database.
func SumProviderAmounts(payments []models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.ProviderAmount)
	}
	return total
}

// eligiblePayments selects the provider's escrow-settled payments that are
// backed by a ledger credit and not attached to any live payout. Rows are
// locked so a concurrent batch run or refund cannot claim the same payment.
func (s *PayoutService) eligiblePayments(tx *gorm.DB, providerID uint, before time.Time) ([]models.Payment, error) {
	var escrowKinds []models.GatewayKind
	for _, k := range models.AllGatewayKinds() {
		if k.Escrow() {
			escrowKinds = append(escrowKinds, k)
		}
	}

	var payments []models.Payment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "payments"}}).
		Where("provider_id = ?", providerID).
		Where("gateway IN ?", escrowKinds).
		Where("status IN ?", []models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusPartiallyRefunded}).
		Where("paid_at < ?", before).
		Where("EXISTS (SELECT 1 FROM ledger_entries le WHERE le.payment_id = payments.id AND le.type = ?)",
			models.LedgerEntryCredit).
		Where("NOT EXISTS (SELECT 1 FROM payout_payments pp JOIN payouts po ON po.id = pp.payout_id WHERE pp.payment_id = payments.id AND po.status NOT IN ?)",
			[]models.PayoutStatus{models.PayoutStatusFailed, models.PayoutStatusCancelled}).
		Order("paid_at asc").
		Find(&payments).Error
	return payments, err
}

// BuildBatch assembles a pending payout from the provider's eligible
// payments. It returns nil with no error when there is nothing to pay out.
func (s *PayoutService) BuildBatch(ctx context.Context, providerID uint, before time.Time) (*models.Payout, error) {
	ok, release, err := s.redis.AcquireLock(ctx, settlementLockKey(providerID), time.Minute)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.New(engine.KindConflict, "provider settlement is busy, retry shortly")
	}
	defer release()

	var provider models.Provider
	if err := s.db.WithContext(ctx).First(&provider, providerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, engine.New(engine.KindNotFound, "provider not found")
		}
		return nil, err
	}
	if provider.PayoutBank == "" || provider.PayoutAccount == "" {
		return nil, engine.Validation("provider has no payout destination configured")
	}

	var payout *models.Payout
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments, err := s.eligiblePayments(tx, providerID, before)
		if err != nil {
			return err
		}
		if len(payments) == 0 {
			return nil
		}

		amount := batchAmount(payments)
		if amount.LessThanOrEqual(decimal.Zero) {
			return nil
		}

		balance, err := s.ledger.lastBalanceTx(tx, providerID)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return engine.New(engine.KindInsufficientBalance,
				fmt.Sprintf("ledger balance %s does not cover batch %s", balance, amount))
		}

		payout = &models.Payout{
			ProviderID:  providerID,
			Amount:      amount,
			Currency:    provider.Currency,
			PeriodStart: periodStart(payments, before),
			PeriodEnd:   before.UTC(),
			Bank:        provider.PayoutBank,
			Account:     provider.PayoutAccount,
			AccountName: provider.PayoutName,
			Status:      models.PayoutStatusPending,
		}
		if err := tx.Create(payout).Error; err != nil {
			return err
		}
		return tx.Model(payout).Association("Payments").Append(payments)
	})
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, nil
	}

	s.logger.Info("payout batch built",
		zap.String("payout_uid", payout.UID),
		zap.Uint("provider_id", providerID),
		zap.String("amount", payout.Amount.StringFixed(2)),
	)
	return payout, nil
}

func periodStart(payments []models.Payment, fallback time.Time) time.Time {
	if len(payments) > 0 && payments[0].PaidAt != nil {
		return payments[0].PaidAt.UTC()
	}
	return fallback.UTC()
}

// batchAmount is the provider share of the batch net of refunds already
// debited from the ledger.
func batchAmount(payments []models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		share := p.ProviderAmount
		if p.RefundedAmount.IsPositive() {
			share = share.Sub(ProportionalProviderRefund(p.ProviderAmount, p.RefundedAmount, p.Amount))
		}
		total = total.Add(share)
	}
	return total
}

// Process sends one pending payout through the disbursement channel. The
// ledger debit posts only on confirmed completion; a failed disbursement
// leaves the balance intact and the payments attached for audit.
func (s *PayoutService) Process(ctx context.Context, payoutID uint) (*models.Payout, error) {
	var payout models.Payout
	err := s.db.WithContext(ctx).Preload("Provider").First(&payout, payoutID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engine.New(engine.KindNotFound, "payout not found")
	}
	if err != nil {
		return nil, err
	}
	if payout.Status != models.PayoutStatusPending {
		return nil, engine.New(engine.KindConflict,
			fmt.Sprintf("payout is %s, only a pending payout can be processed", payout.Status))
	}

	// guarded claim: exactly one caller wins when the worker sweep races an
	// on-demand trigger, so the batch is sent to the rail at most once
	claim := s.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND status = ?", payout.ID, models.PayoutStatusPending).
		Update("status", models.PayoutStatusProcessing)
	if claim.Error != nil {
		return nil, claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil, engine.New(engine.KindConflict, "payout was already claimed for processing")
	}
	payout.Status = models.PayoutStatusProcessing

	result, err := s.disburser.Disburse(ctx, &payout)
	if err != nil {
		if engine.Is(err, engine.KindGatewayUnavailable) {
			// undecided: stay processing for the reconciler to retry
			s.logger.Warn("disbursement channel unavailable",
				zap.String("payout_uid", payout.UID), zap.Error(err))
			return &payout, err
		}
		now := time.Now()
		payout.Status = models.PayoutStatusFailed
		payout.FailureReason = err.Error()
		payout.CompletedAt = &now
		if dbErr := s.db.WithContext(ctx).Save(&payout).Error; dbErr != nil {
			return nil, dbErr
		}
		s.logger.Error("payout failed",
			zap.String("payout_uid", payout.UID), zap.Error(err))
		return &payout, err
	}

	payout.Reference = result.Reference
	if !result.Completed {
		// accepted but awaiting approval on the disbursement side
		if err := s.db.WithContext(ctx).Save(&payout).Error; err != nil {
			return nil, err
		}
		s.logger.Info("payout awaiting approval",
			zap.String("payout_uid", payout.UID),
			zap.String("reference", payout.Reference),
		)
		return &payout, nil
	}

	if err := s.completeDisbursed(ctx, &payout); err != nil {
		return nil, err
	}
	return &payout, nil
}

// completeDisbursed posts the ledger debit and the completed status in one
// transaction, once the rail has confirmed the money moved. The payout is
// still processing on entry, so the debit cannot have been posted yet.
func (s *PayoutService) completeDisbursed(ctx context.Context, payout *models.Payout) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.debitForPayoutTx(tx, payout); err != nil {
			return err
		}
		now := time.Now()
		payout.Status = models.PayoutStatusCompleted
		payout.CompletedAt = &now
		return tx.Save(payout).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("payout completed",
		zap.String("payout_uid", payout.UID),
		zap.String("reference", payout.Reference),
		zap.String("amount", payout.Amount.StringFixed(2)),
	)
	return nil
}

// ReconcileProcessing re-queries the disbursement rail for payouts that
// have sat in processing past the cutoff and drives each to a terminal
// state: completing posts the ledger debit that was deferred, failing
// releases the payments for a fresh batch.
func (s *PayoutService) ReconcileProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	var stuck []models.Payout
	if err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.PayoutStatusProcessing, cutoff).
		Find(&stuck).Error; err != nil {
		return 0, err
	}

	resolved := 0
	for i := range stuck {
		payout := &stuck[i]
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		if payout.Reference == "" {
			// the rail never returned a reference; whether the batch
			// exists there is unknowable, so this needs a human
			s.logger.Error("payout stuck without a rail reference",
				zap.String("payout_uid", payout.UID))
			continue
		}

		result, err := s.disburser.CheckPayout(ctx, payout.Reference)
		if err != nil {
			s.logger.Warn("payout status query failed",
				zap.String("payout_uid", payout.UID), zap.Error(err))
			continue
		}

		switch {
		case result.Completed:
			if err := s.completeDisbursed(ctx, payout); err != nil {
				s.logger.Error("failed to complete reconciled payout",
					zap.String("payout_uid", payout.UID), zap.Error(err))
				continue
			}
			resolved++

		case result.Failed:
			now := time.Now()
			payout.Status = models.PayoutStatusFailed
			payout.FailureReason = result.Message
			payout.CompletedAt = &now
			if err := s.db.WithContext(ctx).Save(payout).Error; err != nil {
				s.logger.Error("failed to mark reconciled payout failed",
					zap.String("payout_uid", payout.UID), zap.Error(err))
				continue
			}
			s.logger.Info("payout failed on the rail",
				zap.String("payout_uid", payout.UID),
				zap.String("reason", result.Message),
			)
			resolved++
		}
	}
	return resolved, nil
}

// Run builds and processes batches for every provider with eligible escrow
// settlements older than the holding period. One provider's failure does not
// stop the sweep.
func (s *PayoutService) Run(ctx context.Context, holdingPeriod time.Duration) error {
	before := time.Now().Add(-holdingPeriod)

	var providerIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Distinct("provider_id").
		Where("status IN ?", []models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusPartiallyRefunded}).
		Where("paid_at < ?", before).
		Pluck("provider_id", &providerIDs).Error; err != nil {
		return err
	}

	for _, id := range providerIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		payout, err := s.BuildBatch(ctx, id, before)
		if err != nil {
			s.logger.Error("payout batch build failed",
				zap.Uint("provider_id", id), zap.Error(err))
			continue
		}
		if payout == nil {
			continue
		}
		if _, err := s.Process(ctx, payout.ID); err != nil {
			s.logger.Error("payout processing failed",
				zap.String("payout_uid", payout.UID), zap.Error(err))
		}
	}
	return nil
}

// RunDueSchedules executes provider payout schedules whose NextRunAt has
// passed, then advances each schedule from its recurrence rule.
func (s *PayoutService) RunDueSchedules(ctx context.Context, holdingPeriod time.Duration) error {
	now := time.Now()

	var due []models.ScheduledPayout
	if err := s.db.WithContext(ctx).
		Where("status = ? AND next_run_at <= ?", models.ScheduledPayoutStatusActive, now).
		Find(&due).Error; err != nil {
		return err
	}

	for _, schedule := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		before := now.Add(-holdingPeriod)
		payout, err := s.BuildBatch(ctx, schedule.ProviderID, before)
		if err != nil {
			s.logger.Error("scheduled payout build failed",
				zap.Uint("schedule_id", schedule.ID), zap.Error(err))
		} else if payout != nil {
			if _, err := s.Process(ctx, payout.ID); err != nil {
				s.logger.Error("scheduled payout processing failed",
					zap.String("payout_uid", payout.UID), zap.Error(err))
			}
		}

		next := schedule.NextRun(now)
		updates := map[string]any{"last_run_at": now, "next_run_at": next}
		if schedule.RecurringInterval == nil || next.Equal(schedule.NextRunAt) {
			// one-shot schedules retire after running
			updates["status"] = models.ScheduledPayoutStatusDisabled
		}
		if err := s.db.WithContext(ctx).Model(&models.ScheduledPayout{}).
			Where("id = ?", schedule.ID).Updates(updates).Error; err != nil {
			s.logger.Error("failed to advance payout schedule",
				zap.Uint("schedule_id", schedule.ID), zap.Error(err))
		}
	}
	return nil
}
