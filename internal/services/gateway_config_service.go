package services

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// GatewayConfigService manages provider gateway credentials: registration
// with encryption at rest, primary promotion, and verification state.
type GatewayConfigService struct {
	db     *gorm.DB
	cipher *CredentialCipher
	logger *zap.Logger
}

// NewGatewayConfigService builds the service
func NewGatewayConfigService(db *gorm.DB, cipher *CredentialCipher, logger *zap.Logger) *GatewayConfigService {
	return &GatewayConfigService{db: db, cipher: cipher, logger: logger}
}

// Register stores a new credential set for a provider. Credentials are
// encrypted before they touch the database; verification starts pending.
func (s *GatewayConfigService) Register(ctx context.Context, providerID uint, kind models.GatewayKind, accountID string, credentials map[string]string) (*models.GatewayConfig, error) {
	if !kind.Valid() {
		return nil, engine.Validation("unsupported gateway " + string(kind))
	}

	var provider models.Provider
	if err := s.db.WithContext(ctx).First(&provider, providerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, engine.New(engine.KindNotFound, "provider not found")
		}
		return nil, err
	}

	plaintext, err := json.Marshal(credentials)
	if err != nil {
		return nil, engine.Wrap(engine.KindInternal, "failed to encode credentials", err)
	}
	blob, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return nil, engine.Wrap(engine.KindInternal, "failed to encrypt credentials", err)
	}

	gc := &models.GatewayConfig{
		ProviderID:   providerID,
		Gateway:      kind,
		AccountID:    accountID,
		Credentials:  blob,
		Verification: models.GatewayVerificationPending,
	}
	if err := s.db.WithContext(ctx).Create(gc).Error; err != nil {
		return nil, err
	}

	s.logger.Info("gateway config registered",
		zap.Uint("provider_id", providerID),
		zap.String("gateway", string(kind)),
	)
	return gc, nil
}

// MarkPrimary promotes one config and demotes its siblings in the same
// transaction, keeping the at-most-one-primary invariant.
func (s *GatewayConfigService) MarkPrimary(ctx context.Context, providerID, configID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var gc models.GatewayConfig
		if err := tx.Where("id = ? AND provider_id = ?", configID, providerID).First(&gc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return engine.New(engine.KindNotFound, "gateway config not found")
			}
			return err
		}
		if gc.Verification != models.GatewayVerificationVerified {
			return engine.Validation("only a verified gateway can be primary")
		}

		if err := tx.Model(&models.GatewayConfig{}).
			Where("provider_id = ? AND id <> ?", providerID, configID).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		return tx.Model(&gc).Update("is_primary", true).Error
	})
}

// SetVerification records the outcome of a credential verification check
func (s *GatewayConfigService) SetVerification(ctx context.Context, configID uint, status models.GatewayVerification) error {
	res := s.db.WithContext(ctx).Model(&models.GatewayConfig{}).
		Where("id = ?", configID).
		Update("verification", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return engine.New(engine.KindNotFound, "gateway config not found")
	}
	return nil
}
