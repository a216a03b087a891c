package gateway

import (
	"context"
	"encoding/json"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/iris"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// PayoutResult is the outcome of pushing one payout batch to the
// disbursement rail. Neither Completed nor Failed means the rail has not
// decided yet; the caller polls again later.
type PayoutResult struct {
	Reference string
	Completed bool
	Failed    bool
	Message   string
	Raw       json.RawMessage
}

// Disburser moves an approved payout batch to the provider's bank account
// and answers status polls for batches already in flight.
type Disburser interface {
	Disburse(ctx context.Context, payout *models.Payout) (*PayoutResult, error)

	// CheckPayout re-queries the rail for a previously created batch by
	// its reference, so an undecided payout can be driven to completion.
	CheckPayout(ctx context.Context, reference string) (*PayoutResult, error)
}

// IrisConfig is the platform's Iris disbursement account
type IrisConfig struct {
	APIKey     string `json:"api_key"`
	Production bool   `json:"production"`
	// ApproverOTP is empty when the account has OTP disabled
	ApproverOTP string `json:"approver_otp"`
}

// IrisDisburser sends payout batches through Midtrans Iris
type IrisDisburser struct {
	cfg    IrisConfig
	client iris.Client
}

// NewIrisDisburser builds the disburser from an explicit config
func NewIrisDisburser(cfg IrisConfig) *IrisDisburser {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}

	d := &IrisDisburser{cfg: cfg}
	d.client.New(cfg.APIKey, env)
	return d
}

// Disburse creates and approves a single-beneficiary payout. The returned
// reference is the external audit handle; completion is reported by Iris on
// approval for bank rails, so an approved payout is treated as completed.
func (d *IrisDisburser) Disburse(ctx context.Context, payout *models.Payout) (*PayoutResult, error) {
	created, mErr := d.client.CreatePayout(iris.CreatePayoutReq{
		Payouts: []iris.CreatePayoutDetailReq{
			{
				BeneficiaryName:    payout.AccountName,
				BeneficiaryAccount: payout.Account,
				BeneficiaryBank:    payout.Bank,
				Amount:             payout.Amount.StringFixed(2),
				Notes:              "zeen payout " + payout.UID,
			},
		},
	})
	if mErr != nil {
		return nil, d.asEngineError("iris create payout failed", mErr)
	}
	if len(created.Payouts) == 0 {
		return nil, engine.Declined("iris returned no payout reference")
	}

	ref := created.Payouts[0].ReferenceNo

	approved, mErr := d.client.ApprovePayout(iris.ApprovePayoutReq{
		ReferenceNo: []string{ref},
		OTP:         d.cfg.ApproverOTP,
	})
	if mErr != nil {
		// the batch exists but is unapproved; report failure with the
		// reference so the audit trail stays intact
		return &PayoutResult{Reference: ref, Message: mErr.Message}, nil
	}

	raw, _ := json.Marshal(approved)
	return &PayoutResult{Reference: ref, Completed: true, Raw: raw}, nil
}

// CheckPayout polls Iris for the batch's current status
func (d *IrisDisburser) CheckPayout(ctx context.Context, reference string) (*PayoutResult, error) {
	details, mErr := d.client.GetPayoutDetails(reference)
	if mErr != nil {
		return nil, d.asEngineError("iris payout status query failed", mErr)
	}

	raw, _ := json.Marshal(details)
	result := irisStatusResult(details.Status)
	result.Reference = reference
	result.Raw = raw
	return result, nil
}

// irisStatusResult maps an iris payout status onto the engine's decision
// model: completed means the money moved, failed and rejected are terminal,
// everything else (queued, approved, processed) is still in flight.
func irisStatusResult(status string) *PayoutResult {
	switch status {
	case "completed":
		return &PayoutResult{Completed: true}
	case "failed", "rejected":
		return &PayoutResult{Failed: true, Message: "iris payout " + status}
	default:
		return &PayoutResult{Message: "iris payout " + status}
	}
}

func (d *IrisDisburser) asEngineError(message string, mErr *midtrans.Error) error {
	if mErr.StatusCode == 0 || mErr.StatusCode >= 500 {
		return engine.Unavailable(message, mErr)
	}
	return engine.Declined(mErr.Message)
}
