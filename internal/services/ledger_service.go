package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// LedgerService owns the append-only provider balance journal. Entries are
// only ever inserted; the running balance snapshot is computed at write time
// under a provider row lock and never recomputed retroactively.
type LedgerService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewLedgerService builds the ledger service
func NewLedgerService(db *gorm.DB, logger *zap.Logger) *LedgerService {
	return &LedgerService{db: db, logger: logger}
}

// creditProviderTx posts the credit inside the caller's transaction. It is
// idempotent per payment: a second call returns the existing entry. The
// guard runs inside the same transaction as the insert, so a concurrent
// writer cannot slip between check and write.
func (s *LedgerService) creditProviderTx(tx *gorm.DB, p *models.Payment) (*models.LedgerEntry, error) {
	var existing models.LedgerEntry
	err := tx.Where("payment_id = ? AND type = ?", p.ID, models.LedgerEntryCredit).First(&existing).Error
	if err == nil {
		s.logger.Debug("ledger credit already posted",
			zap.Uint("payment_id", p.ID),
			zap.Uint("entry_id", existing.ID),
		)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return s.appendTx(tx, &models.LedgerEntry{
		ProviderID: p.ProviderID,
		Type:       models.LedgerEntryCredit,
		Amount:     p.ProviderAmount,
		PaymentID:  &p.ID,
		Metadata:   ledgerMeta("payment", p.UID),
	})
}

// debitForRefundTx posts the compensating debit for a refund against an
// escrow-settled payment, proportional to the refunded fraction.
func (s *LedgerService) debitForRefundTx(tx *gorm.DB, p *models.Payment, refundAmount decimal.Decimal) (*models.LedgerEntry, error) {
	debit := ProportionalProviderRefund(p.ProviderAmount, refundAmount, p.Amount)
	return s.appendTx(tx, &models.LedgerEntry{
		ProviderID: p.ProviderID,
		Type:       models.LedgerEntryDebit,
		Amount:     debit,
		PaymentID:  &p.ID,
		Metadata:   ledgerMeta("refund", p.UID),
	})
}

// debitForPayoutTx posts the debit for a completed payout. The balance must
// cover the payout: an underfunded provider is skipped for this cycle, not
// driven negative.
func (s *LedgerService) debitForPayoutTx(tx *gorm.DB, payout *models.Payout) (*models.LedgerEntry, error) {
	balance, err := s.lastBalanceTx(tx, payout.ProviderID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(payout.Amount) {
		return nil, engine.New(engine.KindInsufficientBalance,
			fmt.Sprintf("balance %s does not cover payout %s", balance, payout.Amount))
	}

	return s.appendTx(tx, &models.LedgerEntry{
		ProviderID: payout.ProviderID,
		Type:       models.LedgerEntryDebit,
		Amount:     payout.Amount,
		PayoutID:   &payout.ID,
		Metadata:   ledgerMeta("payout", payout.UID),
	})
}

// appendTx writes one journal line. The provider row lock serializes
// concurrent writers so BalanceAfter snapshots are strictly sequential.
func (s *LedgerService) appendTx(tx *gorm.DB, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	var provider models.Provider
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&provider, entry.ProviderID).Error; err != nil {
		return nil, err
	}

	balance, err := s.lastBalanceTx(tx, entry.ProviderID)
	if err != nil {
		return nil, err
	}

	entry.BalanceAfter = balance.Add(entry.SignedAmount())
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *LedgerService) lastBalanceTx(tx *gorm.DB, providerID uint) (decimal.Decimal, error) {
	var last models.LedgerEntry
	err := tx.Where("provider_id = ?", providerID).Order("id desc").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return last.BalanceAfter, nil
}

// Balance returns the provider's latest running balance
func (s *LedgerService) Balance(ctx context.Context, providerID uint) (decimal.Decimal, error) {
	return s.lastBalanceTx(s.db.WithContext(ctx), providerID)
}

// Replay re-derives the balance from the full journal and checks every
// snapshot along the way. It is the audit counterpart of Balance.
func (s *LedgerService) Replay(ctx context.Context, providerID uint) (decimal.Decimal, error) {
	var entries []models.LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("id asc").
		Find(&entries).Error; err != nil {
		return decimal.Zero, err
	}
	return ReplayEntries(entries)
}

// ReplayEntries folds journal lines in insertion order, verifying that each
// BalanceAfter equals the previous balance plus the signed amount.
func ReplayEntries(entries []models.LedgerEntry) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, e := range entries {
		balance = balance.Add(e.SignedAmount())
		if !balance.Equal(e.BalanceAfter) {
			return decimal.Zero, fmt.Errorf("ledger entry %d: balance_after %s, replay says %s",
				e.ID, e.BalanceAfter, balance)
		}
	}
	return balance, nil
}

// ProportionalProviderRefund allocates a refund to the provider's side:
// providerAmount x (refund / original), rounded to cents half away from
// zero. Each partial refund is rated against the original amounts.
func ProportionalProviderRefund(providerAmount, refundAmount, originalAmount decimal.Decimal) decimal.Decimal {
	if originalAmount.IsZero() {
		return decimal.Zero
	}
	return providerAmount.Mul(refundAmount).Div(originalAmount).Round(2)
}

func ledgerMeta(source, uid string) []byte {
	return []byte(fmt.Sprintf(`{"source":%q,"uid":%q}`, source, uid))
}
