// Package fees computes the multi-party fee breakdown for one charge. It is
// pure: no I/O, no gateway calls, deterministic for a given input.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// TierPolicy carries the tier-determined pricing inputs
type TierPolicy struct {
	// FeeRate is the platform's commission rate on the full service price
	FeeRate decimal.Decimal
	// DepositRate is the mandatory deposit fraction; zero means the full
	// price is charged up front
	DepositRate decimal.Decimal
}

// PolicyForTier returns the pricing constants for a subscription tier. The
// engine reads these; the subscription domain owns them.
func PolicyForTier(tier models.SubscriptionTier) TierPolicy {
	switch tier {
	case models.TierPro:
		return TierPolicy{
			FeeRate:     decimal.NewFromFloat(0.03),
			DepositRate: decimal.Zero,
		}
	case models.TierGrowth:
		return TierPolicy{
			FeeRate:     decimal.NewFromFloat(0.04),
			DepositRate: decimal.NewFromFloat(0.10),
		}
	default: // starter
		return TierPolicy{
			FeeRate:     decimal.NewFromFloat(0.05),
			DepositRate: decimal.NewFromFloat(0.20),
		}
	}
}

// Input is everything Calculate needs for one charge
type Input struct {
	ServicePrice   decimal.Decimal
	Tier           TierPolicy
	GatewayFeeRate decimal.Decimal
	Payer          models.FeePayer
}

// Breakdown is the deterministic fee split for one charge
type Breakdown struct {
	ServicePrice  decimal.Decimal
	DepositAmount decimal.Decimal
	// ChargeAmount is what moves through the gateway now: the deposit when
	// one is required, else the full price (before any convenience fee)
	ChargeAmount decimal.Decimal
	// ZeenFee is the platform commission, always rated on the full price
	ZeenFee decimal.Decimal
	// GatewayFee is rated on the charge amount, not the contract value
	GatewayFee decimal.Decimal
	TotalFees  decimal.Decimal
	// ConvenienceFee is the surcharge added on top when the client pays fees
	ConvenienceFee decimal.Decimal
	// ClientTotal is what the payer is actually charged now
	ClientTotal decimal.Decimal
	// ProviderAmount is the provider's proceeds from this charge
	ProviderAmount decimal.Decimal
}

var one = decimal.NewFromInt(1)

// round applies cent-level rounding, half away from zero. It is applied after
// each multiplication, not after summing, to match per-line fee display.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Calculate turns (price, tier policy, fee-payer policy) into a Breakdown.
//
// The zeen fee is rated on the full service price even when only a deposit is
// charged; the gateway fee tracks the amount actually charged now. This
// asymmetry is intentional and downstream fee display depends on it.
func Calculate(in Input) (Breakdown, error) {
	if in.ServicePrice.LessThanOrEqual(decimal.Zero) {
		return Breakdown{}, fmt.Errorf("service price must be positive, got %s", in.ServicePrice)
	}
	if in.Tier.FeeRate.IsNegative() || in.Tier.FeeRate.GreaterThanOrEqual(one) {
		return Breakdown{}, fmt.Errorf("tier fee rate out of range: %s", in.Tier.FeeRate)
	}
	if in.Tier.DepositRate.IsNegative() || in.Tier.DepositRate.GreaterThan(one) {
		return Breakdown{}, fmt.Errorf("deposit rate out of range: %s", in.Tier.DepositRate)
	}
	if in.GatewayFeeRate.IsNegative() || in.GatewayFeeRate.GreaterThanOrEqual(one) {
		return Breakdown{}, fmt.Errorf("gateway fee rate out of range: %s", in.GatewayFeeRate)
	}
	if in.Payer != models.FeePayerClient && in.Payer != models.FeePayerProvider {
		return Breakdown{}, fmt.Errorf("unknown fee payer %q", in.Payer)
	}

	b := Breakdown{ServicePrice: in.ServicePrice}

	b.DepositAmount = round(in.ServicePrice.Mul(in.Tier.DepositRate))

	b.ChargeAmount = in.ServicePrice
	if b.DepositAmount.IsPositive() {
		b.ChargeAmount = b.DepositAmount
	}

	b.ZeenFee = round(in.ServicePrice.Mul(in.Tier.FeeRate))
	b.GatewayFee = round(b.ChargeAmount.Mul(in.GatewayFeeRate))
	b.TotalFees = b.ZeenFee.Add(b.GatewayFee)

	switch in.Payer {
	case models.FeePayerClient:
		// fees ride on top; the provider keeps the full charge
		b.ConvenienceFee = b.TotalFees
		b.ClientTotal = b.ChargeAmount.Add(b.ConvenienceFee)
		b.ProviderAmount = b.ChargeAmount
	case models.FeePayerProvider:
		// fees come out of the provider's proceeds
		b.ClientTotal = b.ChargeAmount
		b.ProviderAmount = b.ChargeAmount.Sub(b.TotalFees)
	}

	return b, nil
}
