package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/services"
)

// signatureHeaders lists where each gateway puts its HMAC over the raw body.
// An unknown gateway yields an empty signature, which never verifies.
var signatureHeaders = map[models.GatewayKind]string{
	models.GatewayWiPay:    "X-WiPay-Signature",
	models.GatewayMidtrans: "X-Callback-Signature",
}

type WebhookHandler struct {
	webhooks *services.WebhookService
}

func NewWebhookHandler(webhooks *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Receive ingests one gateway notification. Duplicates acknowledge with 200
// so the gateway stops retrying; signature failures return 401 and are
// journaled as rejected.
// POST /webhooks/:gateway
func (h *WebhookHandler) Receive(c echo.Context) error {
	kind := models.GatewayKind(c.Param("gateway"))

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return engine.Validation("unreadable request body")
	}

	signature := ""
	if header, ok := signatureHeaders[kind]; ok {
		signature = c.Request().Header.Get(header)
	}

	err = h.webhooks.Ingest(c.Request().Context(), kind, body, signature)
	if engine.Is(err, engine.KindDuplicateEvent) {
		return c.JSON(http.StatusOK, echo.Map{"status": "duplicate"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
