package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

func TestSumProviderAmounts(t *testing.T) {
	payments := []models.Payment{
		{ProviderAmount: dec("14.20")},
		{ProviderAmount: dec("8.30")},
		{ProviderAmount: dec("7.50")},
	}

	total := SumProviderAmounts(payments)
	assert.True(t, total.Equal(dec("30.00")), "got %s, want 30.00", total)
}

func TestSumProviderAmountsEmpty(t *testing.T) {
	assert.True(t, SumProviderAmounts(nil).IsZero())
}

func TestBatchAmountNetsOutRefunds(t *testing.T) {
	payments := []models.Payment{
		{ProviderAmount: dec("14.20"), Amount: dec("15.00"), RefundedAmount: dec("0")},
		// half refunded, so half the provider share stays out of the batch
		{ProviderAmount: dec("42.50"), Amount: dec("50.00"), RefundedAmount: dec("25.00")},
	}

	total := batchAmount(payments)
	assert.True(t, total.Equal(dec("35.45")), "got %s, want 35.45", total)
}

func TestBatchAmountFullyRefundedPaymentContributesNothing(t *testing.T) {
	payments := []models.Payment{
		{ProviderAmount: dec("42.50"), Amount: dec("50.00"), RefundedAmount: dec("50.00")},
	}
	assert.True(t, batchAmount(payments).IsZero())
}

func TestPeriodStartFallsBackWhenUnpaid(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	payments := []models.Payment{{}}
	assert.Equal(t, cutoff, periodStart(payments, cutoff))
}

// recordingRail is a stub disbursement channel that counts sends and
// answers status polls from a canned table.
type recordingRail struct {
	disburseCalls int
	statuses      map[string]*gateway.PayoutResult
}

func (r *recordingRail) Disburse(ctx context.Context, payout *models.Payout) (*gateway.PayoutResult, error) {
	r.disburseCalls++
	return &gateway.PayoutResult{Reference: "ref-1", Completed: true}, nil
}

func (r *recordingRail) CheckPayout(ctx context.Context, reference string) (*gateway.PayoutResult, error) {
	if res, ok := r.statuses[reference]; ok {
		return res, nil
	}
	return &gateway.PayoutResult{Reference: reference}, nil
}

func newTestPayoutService(t *testing.T, rail gateway.Disburser) (*PayoutService, sqlmock.Sqlmock) {
	t.Helper()
	gormDB, mock := setupMockDB(t)
	return NewPayoutService(gormDB, nil, NewLedgerService(gormDB, zap.NewNop()), rail, zap.NewNop()), mock
}

// A worker sweep racing an on-demand trigger: the second caller loses the
// guarded claim and must never reach the rail with the same batch.
func TestProcessLostClaimNeverReachesRail(t *testing.T) {
	rail := &recordingRail{}
	svc, mock := newTestPayoutService(t, rail)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payouts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "provider_id", "amount", "status"}).
			AddRow(5, "po-5", 3, "30.00", "pending"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "providers"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	// the concurrent caller claimed it between the read and the update
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payouts"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	_, err := svc.Process(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))
	assert.Zero(t, rail.disburseCalls, "a lost claim must not disburse")
	assert.NoError(t, mock.ExpectationsWereMet())
}

var stuckPayoutCols = []string{"id", "uid", "provider_id", "amount", "status", "reference"}

// A payout the rail reports failed is driven to failed, releasing its
// payments for a fresh batch; the ledger is never debited.
func TestReconcileProcessingMarksRailFailure(t *testing.T) {
	rail := &recordingRail{statuses: map[string]*gateway.PayoutResult{
		"ref-1": {Reference: "ref-1", Failed: true, Message: "iris payout rejected"},
	}}
	svc, mock := newTestPayoutService(t, rail)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payouts"`)).
		WillReturnRows(sqlmock.NewRows(stuckPayoutCols).
			AddRow(5, "po-5", 3, "30.00", "processing", "ref-1"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payouts"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resolved, err := svc.ReconcileProcessing(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A payout the rail reports completed gets the deferred ledger debit and
// the completed status in one transaction.
func TestReconcileProcessingCompletesAndDebits(t *testing.T) {
	rail := &recordingRail{statuses: map[string]*gateway.PayoutResult{
		"ref-1": {Reference: "ref-1", Completed: true},
	}}
	svc, mock := newTestPayoutService(t, rail)

	balanceRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "provider_id", "type", "amount", "balance_after"}).
			AddRow(12, 3, "credit", "30.00", "30.00")
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payouts"`)).
		WillReturnRows(sqlmock.NewRows(stuckPayoutCols).
			AddRow(5, "po-5", 3, "30.00", "processing", "ref-1"))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ledger_entries"`)).
		WillReturnRows(balanceRow())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "providers"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ledger_entries"`)).
		WillReturnRows(balanceRow())
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "ledger_entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(13))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payouts"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resolved, err := svc.ReconcileProcessing(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Without a rail reference the batch's fate is unknowable; the payout is
// left for an operator instead of being guessed at.
func TestReconcileProcessingSkipsPayoutWithoutReference(t *testing.T) {
	rail := &recordingRail{}
	svc, mock := newTestPayoutService(t, rail)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payouts"`)).
		WillReturnRows(sqlmock.NewRows(stuckPayoutCols).
			AddRow(5, "po-5", 3, "30.00", "processing", ""))

	resolved, err := svc.ReconcileProcessing(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}
