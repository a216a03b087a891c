package services

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/config"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// wipayCredentials is the per-provider slice of a WiPay config blob
type wipayCredentials struct {
	AccountID string `json:"account_id"`
	APIKey    string `json:"api_key"`
}

// GatewayResolver constructs adapters behind the two capability contracts.
// Dispatch is a closed switch over models.GatewayKind; per-provider
// credentials are decrypted only here, at the point of use.
type GatewayResolver struct {
	db     *gorm.DB
	cfg    *config.Config
	cipher *CredentialCipher
}

// NewGatewayResolver builds the resolver
func NewGatewayResolver(db *gorm.DB, cfg *config.Config, cipher *CredentialCipher) *GatewayResolver {
	return &GatewayResolver{db: db, cfg: cfg, cipher: cipher}
}

// ForProvider resolves the provider's primary, verified gateway
func (r *GatewayResolver) ForProvider(ctx context.Context, providerID uint) (gateway.Processor, *models.GatewayConfig, error) {
	var gc models.GatewayConfig
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND is_primary = ? AND verification = ?",
			providerID, true, models.GatewayVerificationVerified).
		First(&gc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, engine.Validation("provider has no verified primary gateway")
	}
	if err != nil {
		return nil, nil, err
	}

	proc, err := r.ForConfig(&gc)
	if err != nil {
		return nil, nil, err
	}
	return proc, &gc, nil
}

// ForPayment resolves the gateway a payment was opened on, regardless of
// which config is primary today.
func (r *GatewayResolver) ForPayment(ctx context.Context, p *models.Payment) (gateway.Processor, error) {
	if p.Gateway.Escrow() {
		// escrow gateways are platform-level accounts
		return r.Platform(p.Gateway)
	}

	var gc models.GatewayConfig
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND gateway = ? AND verification = ?",
			p.ProviderID, p.Gateway, models.GatewayVerificationVerified).
		Order("is_primary desc, id desc").
		First(&gc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engine.Validation("provider no longer has credentials for this gateway")
	}
	if err != nil {
		return nil, err
	}
	return r.ForConfig(&gc)
}

// ForConfig builds the adapter for one credential row
func (r *GatewayResolver) ForConfig(gc *models.GatewayConfig) (gateway.Processor, error) {
	switch gc.Gateway {
	case models.GatewayWiPay:
		plaintext, err := r.cipher.Decrypt(gc.Credentials)
		if err != nil {
			return nil, engine.Wrap(engine.KindInternal, "failed to decrypt gateway credentials", err)
		}
		var creds wipayCredentials
		if err := json.Unmarshal(plaintext, &creds); err != nil {
			return nil, engine.Wrap(engine.KindInternal, "malformed gateway credentials", err)
		}

		wc := r.cfg.WiPay
		wc.AccountID = creds.AccountID
		wc.APIKey = creds.APIKey
		return gateway.NewWiPay(wc), nil

	case models.GatewayMidtrans:
		return gateway.NewMidtrans(r.cfg.Midtrans), nil

	default:
		return nil, engine.Validation("unsupported gateway " + string(gc.Gateway))
	}
}

// Platform builds an adapter with platform-level settings only: enough for
// webhook verification and escrow charges, with no merchant credentials.
func (r *GatewayResolver) Platform(kind models.GatewayKind) (gateway.Processor, error) {
	switch kind {
	case models.GatewayWiPay:
		return gateway.NewWiPay(r.cfg.WiPay), nil
	case models.GatewayMidtrans:
		return gateway.NewMidtrans(r.cfg.Midtrans), nil
	default:
		return nil, engine.Validation("unsupported gateway " + string(kind))
	}
}
