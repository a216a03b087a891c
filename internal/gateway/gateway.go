// Package gateway holds the capability contracts the settlement engine uses
// to talk to payment processors, plus one adapter per supported gateway.
//
// There are two settlement models: direct split (the processor divides
// funds between platform and provider at authorization time) and escrow
// (the platform custodies the full amount and owes the provider via the
// ledger). Dispatch between them is a closed switch over GatewayKind; the
// escrow ledger credit is posted by the completion transaction, not by the
// adapter, so it commits atomically with the payment status.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// OrderIDPrefix namespaces every gateway-side order id this engine creates
const OrderIDPrefix = "zeen-"

// OrderIDFor builds the deterministic gateway order id for a payment
func OrderIDFor(p *models.Payment) string {
	return OrderIDPrefix + p.UID
}

// InitResult is the outcome of opening a gateway checkout. SessionToken is
// the short-lived handle of the 3-D-Secure / challenge handshake; the
// completion call exchanges it for a final authorization decision.
type InitResult struct {
	OrderID      string
	RedirectURL  string
	SessionToken string
	RawRequest   json.RawMessage
	Raw          json.RawMessage
}

// Result is the typed outcome of a completion, status query, or refund call.
// Transport errors never escape an adapter raw; they surface as a typed
// *engine.Error from the call itself, while an authoritative gateway
// decision lands here.
type Result struct {
	Success bool
	// Pending means the gateway has not reached a decision yet; the payment
	// stays in processing rather than being prematurely failed
	Pending       bool
	TransactionID string
	CardBrand     string
	CardLast4     string
	Message       string
	Code          string
	Raw           json.RawMessage
}

// Failure builds a declined Result with a user-presentable message
func Failure(message, code string) *Result {
	return &Result{Success: false, Message: message, Code: code}
}

// Notice is a parsed, gateway-authenticated webhook notification, normalized
// to the fields the ingestor needs to correlate and transition a payment.
type Notice struct {
	OrderID       string
	TransactionID string
	Result        Result
}

// Confirmation carries what the payer's return brings back to the engine:
// the echoed session token plus any gateway-provided proof.
type Confirmation struct {
	SessionToken string
	Raw          json.RawMessage
}

// Gateway is the capability surface shared by both settlement models
type Gateway interface {
	Kind() models.GatewayKind
	IsAvailable(ctx context.Context) bool
	SupportedCurrencies() []string
	// FeeRate is the processor's published rate, used by the fee calculator
	FeeRate() decimal.Decimal
	// VerifyWebhookSignature checks the HMAC-SHA256 of the raw request body
	// against the gateway-issued secret, in constant time
	VerifyWebhookSignature(body []byte, signature string) bool
	// ParseWebhook normalizes a verified notification payload
	ParseWebhook(body []byte) (*Notice, error)
}

// Processor is the money-movement surface common to both contracts
type Processor interface {
	Gateway

	// InitializePayment opens a gateway checkout for the payment and sets
	// the order id on the payment; the caller persists it before returning.
	InitializePayment(ctx context.Context, p *models.Payment, returnURL, cancelURL string) (*InitResult, error)

	// CompletePayment exchanges the challenge session for a final decision.
	// It is idempotent at the gateway: re-asking about a decided order
	// returns the same decision.
	CompletePayment(ctx context.Context, p *models.Payment, conf Confirmation) (*Result, error)

	// QueryStatus asks the gateway for the order's current decision without
	// a session token; used by reconciliation of stuck payments.
	QueryStatus(ctx context.Context, p *models.Payment) (*Result, error)

	// Refund reverses part or all of a completed payment. A zero amount
	// means a full refund.
	Refund(ctx context.Context, p *models.Payment, amount decimal.Decimal) (*Result, error)
}

// Split is the pre-computed sub-amount table a direct-split gateway embeds
// in the authorization request.
type Split struct {
	PlatformAmount decimal.Decimal
	ProviderAmount decimal.Decimal
}

// DirectSplitGateway settles by splitting funds at the processor; the
// platform never custodies provider money.
type DirectSplitGateway interface {
	Processor

	// SplitTable derives the processor-level split for a payment
	SplitTable(p *models.Payment) Split
}

