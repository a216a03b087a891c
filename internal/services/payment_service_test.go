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

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/config"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		AppURL:     "http://zeen.test",
		SessionTTL: 30 * time.Minute,
		WiPay:      gateway.WiPayConfig{WebhookSecret: "whsec"},
	}
}

var paymentCols = []string{
	"id", "uid", "booking_id", "provider_id",
	"amount", "provider_amount", "refunded_amount",
	"gateway", "status",
}

// Replaying a success decision against an already-completed escrow payment
// must not credit the provider or touch the booking a second time. The mock
// is strict: any extra booking update or ledger insert fails the test.
func TestFinalizeCompletionAppliedOnce(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	ledger := NewLedgerService(gormDB, zap.NewNop())
	svc := NewPaymentService(gormDB, nil, nil, ledger, testConfig(), zap.NewNop())

	decision := &gateway.Result{Success: true, TransactionID: "txn-77"}

	// first decision: payment completes, booking confirms, one credit posts
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(sqlmock.NewRows(paymentCols).
			AddRow(9, "uid-9", 7, 3, "20.00", "14.20", "0", "midtrans", "processing"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "bookings"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "status"}).
			AddRow(7, "bk-7", "pending"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "bookings"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// duplicate-credit guard finds nothing on the first pass
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ledger_entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "providers"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ledger_entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance_after"}))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "ledger_entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payment_sessions"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	first, err := svc.Finalize(context.Background(), 9, decision)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, first.Status)

	// the same decision again: only the row lock, no writes
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(sqlmock.NewRows(paymentCols).
			AddRow(9, "uid-9", 7, 3, "20.00", "14.20", "0", "midtrans", "completed"))
	mock.ExpectCommit()

	second, err := svc.Finalize(context.Background(), 9, decision)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, second.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A success decision landing while the booking is already confirmed posts
// the credit but leaves the booking alone.
func TestFinalizeSkipsAlreadyConfirmedBooking(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	ledger := NewLedgerService(gormDB, zap.NewNop())
	svc := NewPaymentService(gormDB, nil, nil, ledger, testConfig(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(sqlmock.NewRows(paymentCols).
			AddRow(9, "uid-9", 7, 3, "20.00", "14.20", "0", "midtrans", "processing"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "bookings"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "status"}).
			AddRow(7, "bk-7", "confirmed"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ledger_entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "providers"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ledger_entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance_after"}))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "ledger_entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payment_sessions"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := svc.Finalize(context.Background(), 9, &gateway.Result{Success: true, TransactionID: "txn-77"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A completion racer that loses the row lock finds the credit already
// journaled; the guard returns the existing entry instead of inserting.
func TestFinalizeCreditGuardReturnsExistingEntry(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	ledger := NewLedgerService(gormDB, zap.NewNop())
	svc := NewPaymentService(gormDB, nil, nil, ledger, testConfig(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(sqlmock.NewRows(paymentCols).
			AddRow(9, "uid-9", 7, 3, "20.00", "14.20", "0", "midtrans", "processing"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "bookings"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "status"}).
			AddRow(7, "bk-7", "confirmed"))
	// the credit is already there, so no provider lock and no insert follow
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ledger_entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider_id", "type", "amount", "balance_after"}).
			AddRow(12, 3, "credit", "14.20", "14.20"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payment_sessions"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := svc.Finalize(context.Background(), 9, &gateway.Result{Success: true, TransactionID: "txn-77"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
