package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/services"
)

type ProviderHandler struct {
	db       *gorm.DB
	ledger   *services.LedgerService
	payouts  *services.PayoutService
	gateways *services.GatewayConfigService
}

func NewProviderHandler(db *gorm.DB, ledger *services.LedgerService, payouts *services.PayoutService, gateways *services.GatewayConfigService) *ProviderHandler {
	return &ProviderHandler{db: db, ledger: ledger, payouts: payouts, gateways: gateways}
}

func providerID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, engine.Validation("invalid provider id")
	}
	return uint(id), nil
}

// Balance reports the provider's current escrow balance from the latest
// ledger snapshot.
// GET /api/providers/:id/balance
func (h *ProviderHandler) Balance(c echo.Context) error {
	id, err := providerID(c)
	if err != nil {
		return err
	}

	balance, err := h.ledger.Balance(c.Request().Context(), id)
	if err != nil {
		return err
	}

	// replay the journal so a corrupted snapshot surfaces here, not at payout
	replayed, replayErr := h.ledger.Replay(c.Request().Context(), id)
	audited := replayErr == nil && replayed.Equal(balance)

	return c.JSON(http.StatusOK, echo.Map{
		"provider_id": id,
		"balance":     balance,
		"audited":     audited,
	})
}

// Ledger lists the provider's journal, newest first.
// GET /api/providers/:id/ledger
func (h *ProviderHandler) Ledger(c echo.Context) error {
	id, err := providerID(c)
	if err != nil {
		return err
	}

	limit := 50
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	var entries []models.LedgerEntry
	if err := h.db.WithContext(c.Request().Context()).
		Where("provider_id = ?", id).
		Order("id desc").Limit(limit).
		Find(&entries).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

type registerGatewayRequest struct {
	Gateway     models.GatewayKind `json:"gateway"`
	AccountID   string             `json:"account_id"`
	Credentials map[string]string  `json:"credentials"`
}

// RegisterGateway stores a provider's gateway credentials, encrypted at
// rest, pending verification.
// POST /api/providers/:id/gateways
func (h *ProviderHandler) RegisterGateway(c echo.Context) error {
	id, err := providerID(c)
	if err != nil {
		return err
	}

	var req registerGatewayRequest
	if err := c.Bind(&req); err != nil {
		return engine.Validation("invalid request body")
	}

	gc, err := h.gateways.Register(c.Request().Context(), id, req.Gateway, req.AccountID, req.Credentials)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, gc)
}

// ListGateways returns the provider's gateway configs without credentials.
// GET /api/providers/:id/gateways
func (h *ProviderHandler) ListGateways(c echo.Context) error {
	id, err := providerID(c)
	if err != nil {
		return err
	}

	var configs []models.GatewayConfig
	if err := h.db.WithContext(c.Request().Context()).
		Where("provider_id = ?", id).
		Order("is_primary desc, id desc").
		Find(&configs).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, configs)
}

// MarkGatewayPrimary promotes one verified config to primary.
// PUT /api/providers/:id/gateways/:config_id/primary
func (h *ProviderHandler) MarkGatewayPrimary(c echo.Context) error {
	id, err := providerID(c)
	if err != nil {
		return err
	}
	configID, err := strconv.ParseUint(c.Param("config_id"), 10, 32)
	if err != nil || configID == 0 {
		return engine.Validation("invalid config id")
	}

	if err := h.gateways.MarkPrimary(c.Request().Context(), id, uint(configID)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

type verificationRequest struct {
	Status models.GatewayVerification `json:"status"`
}

// SetGatewayVerification records the outcome of verifying a config's
// credentials against the gateway.
// PUT /api/providers/:id/gateways/:config_id/verification
func (h *ProviderHandler) SetGatewayVerification(c echo.Context) error {
	if _, err := providerID(c); err != nil {
		return err
	}
	configID, err := strconv.ParseUint(c.Param("config_id"), 10, 32)
	if err != nil || configID == 0 {
		return engine.Validation("invalid config id")
	}

	var req verificationRequest
	if err := c.Bind(&req); err != nil {
		return engine.Validation("invalid request body")
	}
	switch req.Status {
	case models.GatewayVerificationVerified, models.GatewayVerificationFailed, models.GatewayVerificationPending:
	default:
		return engine.Validation("unknown verification status")
	}

	if err := h.gateways.SetVerification(c.Request().Context(), uint(configID), req.Status); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// TriggerPayout builds and processes a payout batch for the provider on
// demand, outside the scheduled sweep.
// POST /api/providers/:id/payouts
func (h *ProviderHandler) TriggerPayout(c echo.Context) error {
	id, err := providerID(c)
	if err != nil {
		return err
	}

	payout, err := h.payouts.BuildBatch(c.Request().Context(), id, time.Now())
	if err != nil {
		return err
	}
	if payout == nil {
		return c.JSON(http.StatusOK, echo.Map{"status": "nothing to pay out"})
	}

	processed, err := h.payouts.Process(c.Request().Context(), payout.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, processed)
}

// ListPayouts returns the provider's payout history, newest first.
// GET /api/providers/:id/payouts
func (h *ProviderHandler) ListPayouts(c echo.Context) error {
	id, err := providerID(c)
	if err != nil {
		return err
	}

	var payouts []models.Payout
	if err := h.db.WithContext(c.Request().Context()).
		Where("provider_id = ?", id).
		Order("id desc").Limit(50).
		Find(&payouts).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payouts)
}
