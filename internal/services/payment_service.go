package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/config"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/fees"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// PaymentService drives payments through their state machine. The
// synchronous callback and the asynchronous webhook converge on the same
// finalize path, which applies every transition under a payment row lock so
// the second writer of a race observes the settled state and does nothing.
type PaymentService struct {
	db       *gorm.DB
	redis    *RedisStore
	resolver *GatewayResolver
	ledger   *LedgerService
	logger   *zap.Logger

	appURL     string
	sessionTTL time.Duration
}

// NewPaymentService builds the payment service
func NewPaymentService(db *gorm.DB, redis *RedisStore, resolver *GatewayResolver, ledger *LedgerService, cfg *config.Config, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		db:         db,
		redis:      redis,
		resolver:   resolver,
		ledger:     ledger,
		logger:     logger,
		appURL:     cfg.AppURL,
		sessionTTL: cfg.SessionTTL,
	}
}

// CheckoutResult is what the checkout endpoint hands back to the client
type CheckoutResult struct {
	PaymentUID   string `json:"payment_uid"`
	RedirectURL  string `json:"redirect_url"`
	SessionToken string `json:"session_token"`
	IsExisting   bool   `json:"is_existing"`
}

// InitiateCheckout computes the fee breakdown for a pending booking, opens a
// gateway checkout, and persists the payment with its order id. An active
// session for the booking is resumed unless forceNew is set.
func (s *PaymentService) InitiateCheckout(ctx context.Context, bookingUID string, forceNew bool) (*CheckoutResult, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).Preload("Provider").Preload("Client").
		Where("uid = ?", bookingUID).First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engine.New(engine.KindNotFound, "booking not found")
	}
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, engine.New(engine.KindConflict, "booking is not awaiting payment")
	}

	var paid int64
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("booking_id = ? AND status IN ?", booking.ID,
			[]models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusPartiallyRefunded}).
		Count(&paid).Error; err != nil {
		return nil, err
	}
	if paid > 0 {
		return nil, engine.New(engine.KindConflict, "booking is already paid")
	}

	if existing, err := s.resumeSession(ctx, booking.ID, forceNew); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	proc, _, err := s.resolver.ForProvider(ctx, booking.ProviderID)
	if err != nil {
		return nil, err
	}
	if !supportsCurrency(proc, booking.Currency) {
		return nil, engine.Validation(fmt.Sprintf("gateway %s does not support %s", proc.Kind(), booking.Currency))
	}

	breakdown, err := fees.Calculate(fees.Input{
		ServicePrice:   booking.Price,
		Tier:           fees.PolicyForTier(booking.Provider.Tier),
		GatewayFeeRate: proc.FeeRate(),
		Payer:          booking.Provider.FeePayer,
	})
	if err != nil {
		return nil, engine.Wrap(engine.KindValidation, "fee calculation failed", err)
	}

	payment := &models.Payment{
		BookingID:      booking.ID,
		ClientID:       booking.ClientID,
		ProviderID:     booking.ProviderID,
		Amount:         breakdown.ClientTotal,
		Currency:       booking.Currency,
		ServicePrice:   breakdown.ServicePrice,
		ZeenFee:        breakdown.ZeenFee,
		GatewayFee:     breakdown.GatewayFee,
		ProviderAmount: breakdown.ProviderAmount,
		FeePayer:       booking.Provider.FeePayer,
		Gateway:        proc.Kind(),
		Status:         models.PaymentStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}

	returnURL := fmt.Sprintf("%s/payments/%s/return", s.appURL, payment.UID)
	cancelURL := fmt.Sprintf("%s/payments/%s/cancel", s.appURL, payment.UID)

	init, err := proc.InitializePayment(ctx, payment, returnURL, cancelURL)
	if err != nil {
		if engine.Is(err, engine.KindGatewayDeclined) {
			s.markInitFailed(ctx, payment, err.Error())
		}
		// unavailable: the payment stays pending; a retry opens a new
		// payment with a fresh order id rather than resubmitting this one
		return nil, err
	}

	session := &models.PaymentSession{
		PaymentID:        payment.ID,
		BookingID:        booking.ID,
		Gateway:          proc.Kind(),
		OrderID:          init.OrderID,
		SessionToken:     init.SessionToken,
		RedirectURL:      init.RedirectURL,
		IsActive:         true,
		ExpiresAt:        time.Now().Add(s.sessionTTL),
		RequestMetadata:  init.RawRequest,
		ResponseMetadata: init.Raw,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(payment).Update("gateway_order_id", init.OrderID).Error; err != nil {
			return err
		}
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("checkout initiated",
		zap.String("payment_uid", payment.UID),
		zap.String("gateway", string(proc.Kind())),
		zap.String("order_id", init.OrderID),
	)

	return &CheckoutResult{
		PaymentUID:   payment.UID,
		RedirectURL:  init.RedirectURL,
		SessionToken: init.SessionToken,
	}, nil
}

// resumeSession returns the booking's still-valid session, if any. Stale or
// force-replaced sessions are deactivated so a fresh order id is issued.
func (s *PaymentService) resumeSession(ctx context.Context, bookingID uint, forceNew bool) (*CheckoutResult, error) {
	var session models.PaymentSession
	err := s.db.WithContext(ctx).
		Where("booking_id = ? AND is_active = ?", bookingID, true).
		Order("created_at desc").First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if forceNew || session.Expired(time.Now()) {
		if err := s.db.WithContext(ctx).Model(&session).Update("is_active", false).Error; err != nil {
			return nil, err
		}
		return nil, nil
	}

	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, session.PaymentID).Error; err != nil {
		return nil, err
	}

	return &CheckoutResult{
		PaymentUID:   payment.UID,
		RedirectURL:  session.RedirectURL,
		SessionToken: session.SessionToken,
		IsExisting:   true,
	}, nil
}

// CompleteFromCallback finishes the two-step handshake when the payer
// returns from the gateway. The echoed session token selects the session;
// the authorization decision still comes from the gateway, never from
// client-supplied fields.
func (s *PaymentService) CompleteFromCallback(ctx context.Context, paymentUID, sessionToken string) (*models.Payment, error) {
	payment, err := s.FindByUID(ctx, paymentUID)
	if err != nil {
		return nil, err
	}

	var session models.PaymentSession
	err = s.db.WithContext(ctx).
		Where("payment_id = ? AND session_token = ?", payment.ID, sessionToken).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engine.Validation("unknown session token")
	}
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now()) && !payment.Status.IsFinal() {
		return nil, engine.Validation("payment session expired")
	}

	proc, err := s.resolver.ForPayment(ctx, payment)
	if err != nil {
		return nil, err
	}

	result, err := proc.CompletePayment(ctx, payment, gateway.Confirmation{SessionToken: sessionToken})
	if err != nil {
		if engine.Is(err, engine.KindGatewayUnavailable) {
			// undecided, not failed: leave the payment for reconciliation
			_, _ = s.finalize(ctx, payment.ID, &gateway.Result{Pending: true})
		}
		return nil, err
	}

	return s.finalize(ctx, payment.ID, result)
}

// Finalize applies a gateway decision to a payment. It is the single
// transition path shared by callback, webhook, and reconciliation.
func (s *PaymentService) Finalize(ctx context.Context, paymentID uint, result *gateway.Result) (*models.Payment, error) {
	return s.finalize(ctx, paymentID, result)
}

// finalize applies the decision inside one transaction holding the payment
// row lock. Re-applying a decision to a settled payment is a no-op, which
// makes webhook replays and callback/webhook races safe by construction.
func (s *PaymentService) finalize(ctx context.Context, paymentID uint, result *gateway.Result) (*models.Payment, error) {
	var out models.Payment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, paymentID).Error; err != nil {
			return err
		}

		switch DecideTransition(p.Status, result) {
		case TransitionNoop:
			s.logger.Info("duplicate gateway decision ignored",
				zap.String("payment_uid", p.UID),
				zap.String("status", string(p.Status)),
			)

		case TransitionProcessing:
			p.Status = models.PaymentStatusProcessing
			if err := tx.Save(&p).Error; err != nil {
				return err
			}

		case TransitionComplete:
			now := time.Now()
			p.Status = models.PaymentStatusCompleted
			p.GatewayTransactionID = result.TransactionID
			p.CardBrand = result.CardBrand
			p.CardLast4 = result.CardLast4
			p.RawResponse = result.Raw
			p.PaidAt = &now
			if err := tx.Save(&p).Error; err != nil {
				return err
			}
			if err := s.confirmBookingTx(tx, &p); err != nil {
				return err
			}
			if p.Gateway.Escrow() {
				if _, err := s.ledger.creditProviderTx(tx, &p); err != nil {
					return err
				}
			}
			if err := s.closeSessionsTx(tx, p.ID); err != nil {
				return err
			}

		case TransitionFail:
			p.Status = models.PaymentStatusFailed
			p.FailureReason = result.Message
			p.FailureCode = result.Code
			p.RawResponse = result.Raw
			if err := tx.Save(&p).Error; err != nil {
				return err
			}
			if err := s.closeSessionsTx(tx, p.ID); err != nil {
				return err
			}
		}

		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// confirmBookingTx applies the engine's one cross-domain side effect: a
// pending booking confirms on payment. The status check runs inside the
// same transaction as the payment transition, so racing completers cannot
// confirm twice.
func (s *PaymentService) confirmBookingTx(tx *gorm.DB, p *models.Payment) error {
	var booking models.Booking
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&booking, p.BookingID).Error; err != nil {
		return err
	}
	if booking.Status != models.BookingStatusPending {
		return nil
	}
	booking.Status = models.BookingStatusConfirmed
	if err := tx.Save(&booking).Error; err != nil {
		return err
	}
	s.logger.Info("booking confirmed on payment",
		zap.String("booking_uid", booking.UID),
		zap.String("payment_uid", p.UID),
	)
	return nil
}

func (s *PaymentService) closeSessionsTx(tx *gorm.DB, paymentID uint) error {
	return tx.Model(&models.PaymentSession{}).
		Where("payment_id = ? AND is_active = ?", paymentID, true).
		Update("is_active", false).Error
}

// Refund reverses part or all of a completed payment. Refund and payout
// selection are mutually exclusive under the provider settlement lock plus
// the payment row lock, so a payment cannot be refunded and batched at once.
func (s *PaymentService) Refund(ctx context.Context, paymentUID string, amount *decimal.Decimal, reason string) (*models.Refund, error) {
	payment, err := s.FindByUID(ctx, paymentUID)
	if err != nil {
		return nil, err
	}

	ok, release, err := s.redis.AcquireLock(ctx, settlementLockKey(payment.ProviderID), 30*time.Second)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.New(engine.KindConflict, "provider settlement is busy, retry shortly")
	}
	defer release()

	refundAmount := payment.RemainingRefundable()
	if amount != nil {
		refundAmount = *amount
	}
	if refundAmount.LessThanOrEqual(decimal.Zero) {
		return nil, engine.Validation("refund amount must be positive")
	}
	if refundAmount.GreaterThan(payment.RemainingRefundable()) {
		return nil, engine.Validation("refund exceeds the remaining refundable amount")
	}
	if payment.Status != models.PaymentStatusCompleted && payment.Status != models.PaymentStatusPartiallyRefunded {
		return nil, engine.New(engine.KindConflict, "only a completed payment can be refunded")
	}

	proc, err := s.resolver.ForPayment(ctx, payment)
	if err != nil {
		return nil, err
	}

	result, err := proc.Refund(ctx, payment, refundAmount)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, engine.Declined(result.Message)
	}

	var refund *models.Refund
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, payment.ID).Error; err != nil {
			return err
		}

		next := models.PaymentStatusPartiallyRefunded
		if p.RefundedAmount.Add(refundAmount).GreaterThanOrEqual(p.Amount) {
			next = models.PaymentStatusRefunded
		}
		if !p.Status.CanTransitionTo(next) {
			return engine.New(engine.KindConflict,
				fmt.Sprintf("cannot refund a payment in status %s", p.Status))
		}

		now := time.Now()
		p.Status = next
		p.RefundedAmount = p.RefundedAmount.Add(refundAmount)
		p.RefundedAt = &now
		if err := tx.Save(&p).Error; err != nil {
			return err
		}

		refund = &models.Refund{
			PaymentID:        p.ID,
			ProviderID:       p.ProviderID,
			Amount:           refundAmount,
			Currency:         p.Currency,
			Reason:           reason,
			Gateway:          p.Gateway,
			GatewayReference: result.TransactionID,
			RefundDate:       now,
		}

		if p.Gateway.Escrow() {
			entry, err := s.ledger.debitForRefundTx(tx, &p, refundAmount)
			if err != nil {
				return err
			}
			refund.LedgerEntryID = &entry.ID
		}

		return tx.Create(refund).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment refunded",
		zap.String("payment_uid", payment.UID),
		zap.String("amount", refundAmount.StringFixed(2)),
	)
	return refund, nil
}

// ReconcileStuck re-queries the gateway for payments that have sat in
// processing past the cutoff, feeding each answer through the shared
// transition path.
func (s *PaymentService) ReconcileStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	var stuck []models.Payment
	cutoff := time.Now().Add(-olderThan)
	if err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.PaymentStatusProcessing, cutoff).
		Find(&stuck).Error; err != nil {
		return 0, err
	}

	resolved := 0
	for _, p := range stuck {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		proc, err := s.resolver.ForPayment(ctx, &p)
		if err != nil {
			s.logger.Warn("reconcile: cannot resolve gateway",
				zap.String("payment_uid", p.UID), zap.Error(err))
			continue
		}
		result, err := proc.QueryStatus(ctx, &p)
		if err != nil {
			s.logger.Warn("reconcile: status query failed",
				zap.String("payment_uid", p.UID), zap.Error(err))
			continue
		}
		if result.Pending {
			continue
		}
		if _, err := s.finalize(ctx, p.ID, result); err != nil {
			s.logger.Error("reconcile: finalize failed",
				zap.String("payment_uid", p.UID), zap.Error(err))
			continue
		}
		resolved++
	}
	return resolved, nil
}

// FindByUID loads a payment by its external-safe id
func (s *PaymentService) FindByUID(ctx context.Context, uid string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).Preload("Booking").Preload("Refunds").
		Where("uid = ?", uid).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engine.New(engine.KindNotFound, "payment not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByOrderID correlates a gateway order id back to its payment
func (s *PaymentService) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).Where("gateway_order_id = ?", orderID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engine.New(engine.KindNotFound, "no payment for order id")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func supportsCurrency(proc gateway.Processor, currency string) bool {
	for _, c := range proc.SupportedCurrencies() {
		if c == currency {
			return true
		}
	}
	return false
}

func settlementLockKey(providerID uint) string {
	return fmt.Sprintf("settlement:provider:%d", providerID)
}

func (s *PaymentService) markInitFailed(ctx context.Context, p *models.Payment, reason string) {
	if _, err := s.finalize(ctx, p.ID, gateway.Failure(reason, "")); err != nil {
		s.logger.Error("failed to record init decline",
			zap.String("payment_uid", p.UID), zap.Error(err))
	}
}
