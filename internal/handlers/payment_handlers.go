package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/services"
)

type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Checkout opens a gateway checkout session for a pending booking.
// POST /api/checkout/:booking_uid
func (h *PaymentHandler) Checkout(c echo.Context) error {
	bookingUID := c.Param("booking_uid")
	forceNew := c.QueryParam("force_new") == "true"

	result, err := h.payments.InitiateCheckout(c.Request().Context(), bookingUID, forceNew)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

type completeRequest struct {
	SessionToken string `json:"session_token"`
}

// Complete finishes the checkout handshake when the payer returns from the
// gateway. The session token is the only client input; the decision comes
// from the gateway.
// POST /api/payments/:uid/complete
func (h *PaymentHandler) Complete(c echo.Context) error {
	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return engine.Validation("invalid request body")
	}
	if req.SessionToken == "" {
		return engine.Validation("session_token is required")
	}

	payment, err := h.payments.CompleteFromCallback(c.Request().Context(), c.Param("uid"), req.SessionToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payment)
}

type refundRequest struct {
	// Amount is optional; omitted means refund the full remaining amount
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

// Refund reverses part or all of a completed payment.
// POST /api/payments/:uid/refund
func (h *PaymentHandler) Refund(c echo.Context) error {
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return engine.Validation("invalid request body")
	}

	refund, err := h.payments.Refund(c.Request().Context(), c.Param("uid"), req.Amount, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refund)
}

// Get returns a payment with its fee breakdown and refund history.
// GET /api/payments/:uid
func (h *PaymentHandler) Get(c echo.Context) error {
	payment, err := h.payments.FindByUID(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payment)
}
