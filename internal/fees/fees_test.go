package fees

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateProviderPaysFees(t *testing.T) {
	// 100.00 price, 20% deposit, 5% zeen fee, 4% gateway fee
	b, err := Calculate(Input{
		ServicePrice:   dec("100.00"),
		Tier:           TierPolicy{FeeRate: dec("0.05"), DepositRate: dec("0.20")},
		GatewayFeeRate: dec("0.04"),
		Payer:          models.FeePayerProvider,
	})
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"deposit", b.DepositAmount, "20"},
		{"charge", b.ChargeAmount, "20"},
		{"zeen fee", b.ZeenFee, "5"},
		{"gateway fee", b.GatewayFee, "0.8"},
		{"total fees", b.TotalFees, "5.8"},
		{"client total", b.ClientTotal, "20"},
		{"provider amount", b.ProviderAmount, "14.2"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Errorf("%s = %s; want %s", c.name, c.got, c.want)
		}
	}
}

func TestCalculateClientPaysFees(t *testing.T) {
	// same inputs, convenience fee rides on top
	b, err := Calculate(Input{
		ServicePrice:   dec("100.00"),
		Tier:           TierPolicy{FeeRate: dec("0.05"), DepositRate: dec("0.20")},
		GatewayFeeRate: dec("0.04"),
		Payer:          models.FeePayerClient,
	})
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	if !b.ClientTotal.Equal(dec("25.80")) {
		t.Errorf("client total = %s; want 25.80", b.ClientTotal)
	}
	if !b.ConvenienceFee.Equal(dec("5.80")) {
		t.Errorf("convenience fee = %s; want 5.80", b.ConvenienceFee)
	}
	if !b.ProviderAmount.Equal(dec("20.00")) {
		t.Errorf("provider amount = %s; want 20.00", b.ProviderAmount)
	}
}

func TestZeenFeeAlwaysOnFullPrice(t *testing.T) {
	// deposit or not, the platform commission rates the full price
	withDeposit, err := Calculate(Input{
		ServicePrice:   dec("250.00"),
		Tier:           TierPolicy{FeeRate: dec("0.05"), DepositRate: dec("0.20")},
		GatewayFeeRate: dec("0.04"),
		Payer:          models.FeePayerProvider,
	})
	if err != nil {
		t.Fatal(err)
	}
	noDeposit, err := Calculate(Input{
		ServicePrice:   dec("250.00"),
		Tier:           TierPolicy{FeeRate: dec("0.05"), DepositRate: decimal.Zero},
		GatewayFeeRate: dec("0.04"),
		Payer:          models.FeePayerProvider,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !withDeposit.ZeenFee.Equal(noDeposit.ZeenFee) {
		t.Errorf("zeen fee differs with deposit: %s vs %s", withDeposit.ZeenFee, noDeposit.ZeenFee)
	}
	// gateway fee tracks the charge amount, so it must differ
	if withDeposit.GatewayFee.Equal(noDeposit.GatewayFee) {
		t.Errorf("gateway fee should track charge amount, both %s", withDeposit.GatewayFee)
	}
}

func TestFeeConservation(t *testing.T) {
	prices := []string{"1.00", "19.99", "100.00", "333.33", "4999.95"}
	tiers := []TierPolicy{
		{FeeRate: dec("0.05"), DepositRate: dec("0.20")},
		{FeeRate: dec("0.04"), DepositRate: dec("0.10")},
		{FeeRate: dec("0.03"), DepositRate: decimal.Zero},
	}

	for _, price := range prices {
		for _, tier := range tiers {
			client, err := Calculate(Input{
				ServicePrice: dec(price), Tier: tier,
				GatewayFeeRate: dec("0.04"), Payer: models.FeePayerClient,
			})
			if err != nil {
				t.Fatal(err)
			}
			// client pays fees: what the client pays above provider proceeds
			// is exactly the fee total
			if !client.ClientTotal.Sub(client.ProviderAmount).Equal(client.TotalFees) {
				t.Errorf("price %s: clientPays - providerReceives = %s; want %s",
					price, client.ClientTotal.Sub(client.ProviderAmount), client.TotalFees)
			}

			provider, err := Calculate(Input{
				ServicePrice: dec(price), Tier: tier,
				GatewayFeeRate: dec("0.04"), Payer: models.FeePayerProvider,
			})
			if err != nil {
				t.Fatal(err)
			}
			// provider pays fees: the charge splits exactly into proceeds
			// plus fees
			if !provider.ClientTotal.Equal(provider.ProviderAmount.Add(provider.TotalFees)) {
				t.Errorf("price %s: charge %s != provider %s + fees %s",
					price, provider.ClientTotal, provider.ProviderAmount, provider.TotalFees)
			}
		}
	}
}

func TestDepositBound(t *testing.T) {
	prices := []string{"0.01", "10.00", "99.99", "12345.67"}
	rates := []string{"0", "0.10", "0.20", "0.50", "1"}

	for _, price := range prices {
		for _, rate := range rates {
			b, err := Calculate(Input{
				ServicePrice: dec(price),
				Tier:         TierPolicy{FeeRate: dec("0.05"), DepositRate: dec(rate)},
				GatewayFeeRate: dec("0.04"),
				Payer:          models.FeePayerProvider,
			})
			if err != nil {
				t.Fatal(err)
			}
			if b.DepositAmount.IsNegative() || b.DepositAmount.GreaterThan(dec(price)) {
				t.Errorf("deposit %s out of [0, %s] at rate %s", b.DepositAmount, price, rate)
			}
		}
	}
}

func TestRoundingHalfAwayFromZeroPerLine(t *testing.T) {
	// 33.35 x 0.05 = 1.6675 -> 1.67, 33.35 x 0.20 = 6.67, 6.67 x 0.04 = 0.2668 -> 0.27
	b, err := Calculate(Input{
		ServicePrice:   dec("33.35"),
		Tier:           TierPolicy{FeeRate: dec("0.05"), DepositRate: dec("0.20")},
		GatewayFeeRate: dec("0.04"),
		Payer:          models.FeePayerProvider,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !b.ZeenFee.Equal(dec("1.67")) {
		t.Errorf("zeen fee = %s; want 1.67", b.ZeenFee)
	}
	if !b.GatewayFee.Equal(dec("0.27")) {
		t.Errorf("gateway fee = %s; want 0.27", b.GatewayFee)
	}
	// totals are summed from the rounded lines, not re-rounded
	if !b.TotalFees.Equal(dec("1.94")) {
		t.Errorf("total fees = %s; want 1.94", b.TotalFees)
	}
}

func TestCalculateRejectsBadInput(t *testing.T) {
	valid := Input{
		ServicePrice:   dec("100.00"),
		Tier:           TierPolicy{FeeRate: dec("0.05"), DepositRate: dec("0.20")},
		GatewayFeeRate: dec("0.04"),
		Payer:          models.FeePayerProvider,
	}

	cases := []struct {
		name   string
		mutate func(*Input)
	}{
		{"zero price", func(in *Input) { in.ServicePrice = decimal.Zero }},
		{"negative price", func(in *Input) { in.ServicePrice = dec("-5") }},
		{"fee rate 1", func(in *Input) { in.Tier.FeeRate = one }},
		{"negative deposit rate", func(in *Input) { in.Tier.DepositRate = dec("-0.1") }},
		{"deposit rate above 1", func(in *Input) { in.Tier.DepositRate = dec("1.5") }},
		{"negative gateway rate", func(in *Input) { in.GatewayFeeRate = dec("-0.04") }},
		{"unknown payer", func(in *Input) { in.Payer = "nobody" }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in := valid
			c.mutate(&in)
			if _, err := Calculate(in); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPolicyForTier(t *testing.T) {
	if p := PolicyForTier(models.TierStarter); !p.DepositRate.Equal(dec("0.20")) {
		t.Errorf("starter deposit rate = %s; want 0.20", p.DepositRate)
	}
	if p := PolicyForTier(models.TierPro); !p.DepositRate.IsZero() {
		t.Errorf("pro tier should require no deposit, got %s", p.DepositRate)
	}
}
