package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

func wipayTestPayment() *models.Payment {
	return &models.Payment{
		UID:            "11111111-2222-3333-4444-555555555555",
		BookingID:      7,
		ProviderID:     3,
		Amount:         decimal.RequireFromString("20.00"),
		ProviderAmount: decimal.RequireFromString("14.20"),
		Currency:       "JMD",
		Status:         models.PaymentStatusPending,
	}
}

func newTestWiPay(baseURL string) *WiPay {
	return NewWiPay(WiPayConfig{
		BaseURL:           baseURL,
		AccountID:         "merchant-1",
		PlatformAccountID: "platform-0",
		APIKey:            "key",
		WebhookSecret:     "whsec",
		FeeRate:           decimal.RequireFromString("0.04"),
	})
}

func TestWiPayInitializePayment(t *testing.T) {
	var captured wipayInitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/payments", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(wipayInitResponse{
			RequestID: "sess-123",
			URL:       "https://pay.example/checkout/abc",
		})
	}))
	defer srv.Close()

	p := wipayTestPayment()
	res, err := newTestWiPay(srv.URL).InitializePayment(context.Background(), p, "https://zeen/return", "https://zeen/cancel")
	require.NoError(t, err)

	assert.Equal(t, "zeen-"+p.UID, res.OrderID)
	assert.Equal(t, "zeen-"+p.UID, p.GatewayOrderID, "order id must be set on the payment")
	assert.Equal(t, "sess-123", res.SessionToken)
	assert.Equal(t, "https://pay.example/checkout/abc", res.RedirectURL)

	// split table covers the full charge
	require.Len(t, captured.Split, 2)
	assert.Equal(t, "5.80", captured.Split[0].Amount)
	assert.Equal(t, "14.20", captured.Split[1].Amount)
	assert.Equal(t, "20.00", captured.Total)

	// the outbound request is returned so the session keeps both sides of
	// the exchange
	var recorded wipayInitRequest
	require.NoError(t, json.Unmarshal(res.RawRequest, &recorded))
	assert.Equal(t, captured.OrderID, recorded.OrderID)
	assert.Equal(t, captured.Total, recorded.Total)
}

func TestWiPayCompletePaymentDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wipayDecision{
			Status:     "declined",
			Message:    "insufficient funds",
			ReasonCode: "51",
		})
	}))
	defer srv.Close()

	p := wipayTestPayment()
	p.GatewayOrderID = "zeen-" + p.UID

	res, err := newTestWiPay(srv.URL).CompletePayment(context.Background(), p, Confirmation{SessionToken: "sess-123"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, res.Pending)
	assert.Equal(t, "insufficient funds", res.Message)
	assert.Equal(t, "51", res.Code)
}

func TestWiPayQueryStatusPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wipayDecision{Status: "pending"})
	}))
	defer srv.Close()

	p := wipayTestPayment()
	p.GatewayOrderID = "zeen-" + p.UID

	res, err := newTestWiPay(srv.URL).QueryStatus(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.False(t, res.Success)
}

func TestWiPayTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := wipayTestPayment()
	_, err := newTestWiPay(srv.URL).InitializePayment(context.Background(), p, "", "")
	require.Error(t, err)
	assert.Equal(t, engine.KindGatewayUnavailable, engine.KindOf(err))

	// unreachable host: the raw transport error must not escape
	srv.Close()
	_, err = newTestWiPay(srv.URL).InitializePayment(context.Background(), p, "", "")
	require.Error(t, err)
	assert.Equal(t, engine.KindGatewayUnavailable, engine.KindOf(err))
}

func TestWiPayParseWebhook(t *testing.T) {
	body := []byte(`{"order_id":"zeen-abc","status":"approved","transaction_id":"txn-9","card_brand":"visa","card_last4":"4242"}`)

	n, err := newTestWiPay("http://unused").ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "zeen-abc", n.OrderID)
	assert.True(t, n.Result.Success)
	assert.Equal(t, "txn-9", n.Result.TransactionID)
	assert.Equal(t, "4242", n.Result.CardLast4)

	_, err = newTestWiPay("http://unused").ParseWebhook([]byte(`{"status":"approved"}`))
	require.Error(t, err)
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
}

func TestWiPaySplitTable(t *testing.T) {
	p := wipayTestPayment()
	split := newTestWiPay("http://unused").SplitTable(p)

	assert.True(t, split.PlatformAmount.Add(split.ProviderAmount).Equal(p.Amount),
		"split must conserve the full charge")
	assert.True(t, split.ProviderAmount.Equal(p.ProviderAmount))
}
