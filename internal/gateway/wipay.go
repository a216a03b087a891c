package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// WiPayConfig is the decrypted credential set plus platform-level settings
// for one provider's WiPay merchant account.
type WiPayConfig struct {
	BaseURL       string          `json:"base_url"`
	AccountID     string          `json:"account_id"`
	APIKey        string          `json:"api_key"`
	WebhookSecret string          `json:"webhook_secret"`
	FeeRate       decimal.Decimal `json:"fee_rate"`
	// PlatformAccountID receives the platform's sub-amount of each split
	PlatformAccountID string        `json:"platform_account_id"`
	Timeout           time.Duration `json:"-"`
}

// WiPay is the direct-split adapter. The processor divides each charge
// between the platform and provider accounts at authorization time, so
// completed WiPay payments never touch the ledger.
type WiPay struct {
	cfg    WiPayConfig
	client *http.Client
}

// NewWiPay builds the adapter with an explicit config; nothing is read from
// ambient state.
func NewWiPay(cfg WiPayConfig) *WiPay {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &WiPay{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WiPay) Kind() models.GatewayKind { return models.GatewayWiPay }

func (w *WiPay) SupportedCurrencies() []string { return []string{"JMD", "TTD", "USD"} }

func (w *WiPay) FeeRate() decimal.Decimal { return w.cfg.FeeRate }

func (w *WiPay) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+"/api/v1/status", nil)
	if err != nil {
		return false
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (w *WiPay) VerifyWebhookSignature(body []byte, signature string) bool {
	return VerifySignature(body, signature, w.cfg.WebhookSecret)
}

// SplitTable derives the processor-level sub-amounts. The platform keeps
// everything above the provider's proceeds, which covers both fee-payer
// policies without a second code path.
func (w *WiPay) SplitTable(p *models.Payment) Split {
	return Split{
		PlatformAmount: p.Amount.Sub(p.ProviderAmount),
		ProviderAmount: p.ProviderAmount,
	}
}

type wipayInitRequest struct {
	OrderID   string           `json:"order_id"`
	AccountID string           `json:"account_number"`
	Total     string           `json:"total"`
	Currency  string           `json:"currency"`
	ReturnURL string           `json:"return_url"`
	CancelURL string           `json:"cancel_url"`
	Split     []wipaySplitLine `json:"split"`
}

type wipaySplitLine struct {
	AccountID string `json:"account_number"`
	Amount    string `json:"amount"`
}

type wipayInitResponse struct {
	RequestID string `json:"request_id"`
	URL       string `json:"url"`
	Message   string `json:"message"`
}

// InitializePayment opens a hosted checkout carrying the pre-computed split
// table and sets the order id on the payment.
func (w *WiPay) InitializePayment(ctx context.Context, p *models.Payment, returnURL, cancelURL string) (*InitResult, error) {
	split := w.SplitTable(p)
	body := wipayInitRequest{
		OrderID:   OrderIDFor(p),
		AccountID: w.cfg.AccountID,
		Total:     p.Amount.StringFixed(2),
		Currency:  p.Currency,
		ReturnURL: returnURL,
		CancelURL: cancelURL,
		Split: []wipaySplitLine{
			{AccountID: w.cfg.PlatformAccountID, Amount: split.PlatformAmount.StringFixed(2)},
			{AccountID: w.cfg.AccountID, Amount: split.ProviderAmount.StringFixed(2)},
		},
	}

	var out wipayInitResponse
	raw, err := w.post(ctx, "/api/v1/payments", body, &out)
	if err != nil {
		return nil, err
	}
	if out.URL == "" || out.RequestID == "" {
		return nil, engine.Declined(firstNonEmpty(out.Message, "gateway did not open a checkout"))
	}

	p.GatewayOrderID = body.OrderID
	rawReq, _ := json.Marshal(body)
	return &InitResult{
		OrderID:      body.OrderID,
		RedirectURL:  out.URL,
		SessionToken: out.RequestID,
		RawRequest:   rawReq,
		Raw:          raw,
	}, nil
}

type wipayConfirmRequest struct {
	RequestID string `json:"request_id"`
}

type wipayDecision struct {
	Status        string `json:"status"` // approved | declined | pending
	TransactionID string `json:"transaction_id"`
	CardBrand     string `json:"card_brand"`
	CardLast4     string `json:"card_last4"`
	Message       string `json:"message"`
	ReasonCode    string `json:"reason_code"`
}

// CompletePayment exchanges the challenge session for the final decision
func (w *WiPay) CompletePayment(ctx context.Context, p *models.Payment, conf Confirmation) (*Result, error) {
	var out wipayDecision
	path := fmt.Sprintf("/api/v1/payments/%s/confirm", p.GatewayOrderID)
	raw, err := w.post(ctx, path, wipayConfirmRequest{RequestID: conf.SessionToken}, &out)
	if err != nil {
		return nil, err
	}
	return w.decisionResult(out, raw), nil
}

// QueryStatus asks for the order's current decision without a session token
func (w *WiPay) QueryStatus(ctx context.Context, p *models.Payment) (*Result, error) {
	var out wipayDecision
	path := fmt.Sprintf("/api/v1/payments/%s", p.GatewayOrderID)
	raw, err := w.get(ctx, path, &out)
	if err != nil {
		return nil, err
	}
	return w.decisionResult(out, raw), nil
}

type wipayRefundRequest struct {
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
}

type wipayRefundResponse struct {
	Status   string `json:"status"`
	RefundID string `json:"refund_id"`
	Message  string `json:"message"`
}

// Refund reverses the charge; the gateway settles the split reversal on its
// side and the engine trusts its response. A zero amount refunds in full.
func (w *WiPay) Refund(ctx context.Context, p *models.Payment, amount decimal.Decimal) (*Result, error) {
	if amount.IsZero() {
		amount = p.Amount
	}
	var out wipayRefundResponse
	raw, err := w.post(ctx, "/api/v1/refunds", wipayRefundRequest{
		TransactionID: p.GatewayTransactionID,
		Amount:        amount.StringFixed(2),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Status != "approved" {
		return Failure(firstNonEmpty(out.Message, "refund declined"), out.Status), nil
	}
	return &Result{Success: true, TransactionID: out.RefundID, Raw: raw}, nil
}

// ParseWebhook normalizes a verified WiPay notification
func (w *WiPay) ParseWebhook(body []byte) (*Notice, error) {
	var payload struct {
		OrderID string `json:"order_id"`
		wipayDecision
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, engine.Validation("malformed webhook payload")
	}
	if payload.OrderID == "" {
		return nil, engine.Validation("webhook payload missing order_id")
	}
	return &Notice{
		OrderID:       payload.OrderID,
		TransactionID: payload.TransactionID,
		Result:        *w.decisionResult(payload.wipayDecision, body),
	}, nil
}

func (w *WiPay) decisionResult(d wipayDecision, raw json.RawMessage) *Result {
	switch d.Status {
	case "approved":
		return &Result{
			Success:       true,
			TransactionID: d.TransactionID,
			CardBrand:     d.CardBrand,
			CardLast4:     d.CardLast4,
			Raw:           raw,
		}
	case "pending":
		return &Result{Pending: true, Raw: raw}
	default:
		r := Failure(firstNonEmpty(d.Message, "payment declined"), d.ReasonCode)
		r.Raw = raw
		return r
	}
}

func (w *WiPay) post(ctx context.Context, path string, payload, out interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, engine.Wrap(engine.KindInternal, "failed to marshal gateway request", err)
	}
	return w.do(ctx, http.MethodPost, path, bytes.NewReader(data), out)
}

func (w *WiPay) get(ctx context.Context, path string, out interface{}) (json.RawMessage, error) {
	return w.do(ctx, http.MethodGet, path, nil, out)
}

// do performs one bounded HTTP call. Network failures and 5xx responses are
// converted to a typed unavailable error at this boundary; they never reach
// the caller as raw transport errors.
func (w *WiPay) do(ctx context.Context, method, path string, body io.Reader, out interface{}) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, w.cfg.BaseURL+path, body)
	if err != nil {
		return nil, engine.Wrap(engine.KindInternal, "failed to build gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, engine.Unavailable("wipay unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.Unavailable("failed reading wipay response", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, engine.Unavailable(fmt.Sprintf("wipay returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		return nil, engine.Declined(firstNonEmpty(apiErr.Message, fmt.Sprintf("wipay rejected the request (%d)", resp.StatusCode)))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, engine.Unavailable("undecodable wipay response", err)
		}
	}
	return raw, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
