package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// MidtransConfig is the platform's Midtrans account. Escrow settlement is
// platform-level: every provider's escrow charges land in this one account.
type MidtransConfig struct {
	ServerKey  string          `json:"server_key"`
	ClientKey  string          `json:"client_key"`
	Production bool            `json:"production"`
	FeeRate    decimal.Decimal `json:"fee_rate"`
}

// Midtrans is the escrow adapter. Completed charges credit the provider's
// ledger inside the completion transaction; funds leave the platform later
// through payout batches.
type Midtrans struct {
	cfg  MidtransConfig
	snap snap.Client
	core coreapi.Client
}

// NewMidtrans builds the adapter from an explicit config
func NewMidtrans(cfg MidtransConfig) *Midtrans {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}

	m := &Midtrans{cfg: cfg}
	m.snap.New(cfg.ServerKey, env)
	m.core.New(cfg.ServerKey, env)
	return m
}

func (m *Midtrans) Kind() models.GatewayKind { return models.GatewayMidtrans }

func (m *Midtrans) SupportedCurrencies() []string { return []string{"IDR"} }

func (m *Midtrans) FeeRate() decimal.Decimal { return m.cfg.FeeRate }

// IsAvailable is best-effort: the SDK exposes no health endpoint, so
// availability is judged per call and surfaced as unavailable errors.
func (m *Midtrans) IsAvailable(ctx context.Context) bool { return true }

func (m *Midtrans) VerifyWebhookSignature(body []byte, signature string) bool {
	return VerifySignature(body, signature, m.cfg.ServerKey)
}

// InitializePayment opens a Snap checkout and sets the order id on the
// payment. The Snap token doubles as the challenge session token.
func (m *Midtrans) InitializePayment(ctx context.Context, p *models.Payment, returnURL, cancelURL string) (*InitResult, error) {
	orderID := OrderIDFor(p)

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID: orderID,
			// midtrans charges whole currency units
			GrossAmt: p.Amount.Round(0).IntPart(),
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    fmt.Sprintf("booking-%d", p.BookingID),
				Name:  fmt.Sprintf("Booking payment %s", p.UID),
				Price: p.Amount.Round(0).IntPart(),
				Qty:   1,
			},
		},
		Callbacks: &snap.Callbacks{Finish: returnURL},
	}
	if email := p.Booking.PayerEmail(); email != "" {
		req.CustomerDetail = &midtrans.CustomerDetails{
			FName: p.Booking.PayerName(),
			Email: email,
		}
	}

	resp, mErr := m.snap.CreateTransaction(req)
	if mErr != nil {
		return nil, m.asEngineError("midtrans create transaction failed", mErr)
	}

	raw, _ := json.Marshal(resp)
	rawReq, _ := json.Marshal(req)
	p.GatewayOrderID = orderID
	return &InitResult{
		OrderID:      orderID,
		RedirectURL:  resp.RedirectURL,
		SessionToken: resp.Token,
		RawRequest:   rawReq,
		Raw:          raw,
	}, nil
}

// CompletePayment resolves the final decision. Midtrans decides server-side,
// so the echoed token only proves the payer returned; the authoritative
// answer comes from the status API.
func (m *Midtrans) CompletePayment(ctx context.Context, p *models.Payment, conf Confirmation) (*Result, error) {
	return m.QueryStatus(ctx, p)
}

// QueryStatus asks the status API for the order's current decision
func (m *Midtrans) QueryStatus(ctx context.Context, p *models.Payment) (*Result, error) {
	resp, mErr := m.core.CheckTransaction(p.GatewayOrderID)
	if mErr != nil {
		return nil, m.asEngineError("midtrans status check failed", mErr)
	}

	raw, _ := json.Marshal(resp)
	return m.statusResult(resp.TransactionStatus, resp.FraudStatus, resp.TransactionID,
		resp.PaymentType, resp.MaskedCard, resp.StatusMessage, resp.StatusCode, raw), nil
}

// Refund reverses part or all of a settled charge. A zero amount refunds in
// full. A compensating ledger debit is posted by the caller.
func (m *Midtrans) Refund(ctx context.Context, p *models.Payment, amount decimal.Decimal) (*Result, error) {
	if amount.IsZero() {
		amount = p.Amount
	}

	resp, mErr := m.core.RefundTransaction(p.GatewayOrderID, &coreapi.RefundReq{
		RefundKey: fmt.Sprintf("%s-r%d", p.UID, len(p.Refunds)+1),
		Amount:    amount.Round(0).IntPart(),
	})
	if mErr != nil {
		return nil, m.asEngineError("midtrans refund failed", mErr)
	}

	raw, _ := json.Marshal(resp)
	return &Result{Success: true, TransactionID: resp.TransactionID, Raw: raw}, nil
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
	MaskedCard        string `json:"masked_card"`
	StatusMessage     string `json:"status_message"`
	StatusCode        string `json:"status_code"`
}

// ParseWebhook normalizes a verified Midtrans notification
func (m *Midtrans) ParseWebhook(body []byte) (*Notice, error) {
	var n midtransNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, engine.Validation("malformed webhook payload")
	}
	if n.OrderID == "" {
		return nil, engine.Validation("webhook payload missing order_id")
	}
	return &Notice{
		OrderID:       n.OrderID,
		TransactionID: n.TransactionID,
		Result: *m.statusResult(n.TransactionStatus, n.FraudStatus, n.TransactionID,
			n.PaymentType, n.MaskedCard, n.StatusMessage, n.StatusCode, body),
	}, nil
}

// statusResult maps midtrans transaction statuses onto the engine's decision
// model: settlement and accepted captures succeed, pending and challenged
// captures stay undecided, everything else is a decline.
func (m *Midtrans) statusResult(status, fraud, txnID, payType, maskedCard, message, code string, raw json.RawMessage) *Result {
	switch status {
	case "settlement":
		return m.successResult(txnID, payType, maskedCard, raw)
	case "capture":
		if fraud == "challenge" {
			return &Result{Pending: true, Raw: raw}
		}
		return m.successResult(txnID, payType, maskedCard, raw)
	case "pending", "authorize":
		return &Result{Pending: true, Raw: raw}
	default: // deny, cancel, expire, failure
		r := Failure(firstNonEmpty(message, "payment "+status), code)
		r.Raw = raw
		return r
	}
}

func (m *Midtrans) successResult(txnID, payType, maskedCard string, raw json.RawMessage) *Result {
	return &Result{
		Success:       true,
		TransactionID: txnID,
		CardBrand:     payType,
		CardLast4:     last4(maskedCard),
		Raw:           raw,
	}
}

// last4 extracts the trailing digits of a masked card number
func last4(masked string) string {
	masked = strings.NewReplacer("-", "", "*", "").Replace(masked)
	if len(masked) < 4 {
		return ""
	}
	return masked[len(masked)-4:]
}

// asEngineError converts an SDK error at the adapter boundary: 5xx and
// transport failures are retriable with a fresh order id, the rest are
// authoritative declines.
func (m *Midtrans) asEngineError(message string, mErr *midtrans.Error) error {
	if mErr.StatusCode == 0 || mErr.StatusCode >= 500 {
		return engine.Unavailable(message, mErr)
	}
	return engine.Declined(mErr.Message)
}
