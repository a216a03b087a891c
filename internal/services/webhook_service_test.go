package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

func testRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := &RedisStore{client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func newTestWebhookService(t *testing.T) (*WebhookService, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	gormDB, mock := setupMockDB(t)
	store, mr := testRedis(t)

	cfg := testConfig()
	resolver := NewGatewayResolver(gormDB, cfg, nil)
	ledger := NewLedgerService(gormDB, zap.NewNop())
	payments := NewPaymentService(gormDB, store, resolver, ledger, cfg, zap.NewNop())
	return NewWebhookService(gormDB, store, resolver, payments, zap.NewNop()), mock, mr
}

func expectEventJournal(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "webhook_events"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()
}

// A delivery whose transition transaction dies must not leave a dedupe
// marker behind: the gateway's retry of the identical delivery has to be
// processed, not answered as a duplicate while the payment stays pending.
func TestIngestRetryAfterFailedTransition(t *testing.T) {
	ws, mock, mr := newTestWebhookService(t)

	body := []byte(`{"order_id":"zeen-abc","status":"declined","message":"card declined","reason_code":"05"}`)
	sig := gateway.SignBody(body, "whsec")

	pendingRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(paymentCols).
			AddRow(9, "uid-9", 7, 3, "20.00", "14.20", "0", "wipay", "pending")
	}

	// first delivery: the database dies mid-transition
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(pendingRow())
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()
	expectEventJournal(mock)

	err := ws.Ingest(context.Background(), models.GatewayWiPay, body, sig)
	require.Error(t, err)
	assert.NotEqual(t, engine.KindDuplicateEvent, engine.KindOf(err))
	assert.Empty(t, mr.Keys(), "a failed delivery must not be marked as seen")

	// the retry of the identical delivery goes through the full transition
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(pendingRow())
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(pendingRow())
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payment_sessions"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectEventJournal(mock)

	require.NoError(t, ws.Ingest(context.Background(), models.GatewayWiPay, body, sig))
	assert.True(t, mr.Exists("webhook:wipay:zeen-abc::failure"),
		"a processed delivery is marked for dedupe")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Once an identical delivery has been fully processed, its replay is
// journaled as a duplicate without touching the payment.
func TestIngestReplayAfterProcessedIsDuplicate(t *testing.T) {
	ws, mock, mr := newTestWebhookService(t)

	body := []byte(`{"order_id":"zeen-abc","status":"declined","message":"card declined","reason_code":"05"}`)
	sig := gateway.SignBody(body, "whsec")

	require.NoError(t, mr.Set("webhook:wipay:zeen-abc::failure", "1"))

	expectEventJournal(mock)

	err := ws.Ingest(context.Background(), models.GatewayWiPay, body, sig)
	require.Error(t, err)
	assert.Equal(t, engine.KindDuplicateEvent, engine.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An unauthenticated delivery is journaled as rejected and never parsed
func TestIngestRejectsBadSignature(t *testing.T) {
	ws, mock, _ := newTestWebhookService(t)

	body := []byte(`{"order_id":"zeen-abc","status":"approved"}`)
	expectEventJournal(mock)

	err := ws.Ingest(context.Background(), models.GatewayWiPay, body, "deadbeef")
	require.Error(t, err)
	assert.Equal(t, engine.KindSignatureInvalid, engine.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
