package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/gateway"
	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/models"
)

// webhookDedupeWindow is how long a processed notification id stays marked
// in redis. The database journal remains the durable record; redis only
// short-circuits bursts of retried deliveries.
const webhookDedupeWindow = 24 * time.Hour

// WebhookService ingests asynchronous gateway notifications. Every delivery
// is journaled, including rejected ones, which are kept as security evidence.
type WebhookService struct {
	db       *gorm.DB
	redis    *RedisStore
	resolver *GatewayResolver
	payments *PaymentService
	logger   *zap.Logger
}

func NewWebhookService(db *gorm.DB, redis *RedisStore, resolver *GatewayResolver, payments *PaymentService, logger *zap.Logger) *WebhookService {
	return &WebhookService{db: db, redis: redis, resolver: resolver, payments: payments, logger: logger}
}

// Ingest processes one raw webhook delivery. The order of checks matters:
// the signature is verified before the body is parsed or trusted in any way,
// and dedupe runs before the payment transition so replays are cheap no-ops.
// A nil error means the gateway should receive a 200 and stop retrying.
func (s *WebhookService) Ingest(ctx context.Context, kind models.GatewayKind, body []byte, signature string) error {
	if !kind.Valid() {
		return engine.New(engine.KindNotFound, "unknown gateway")
	}

	proc, err := s.resolver.Platform(kind)
	if err != nil {
		return err
	}

	event := &models.WebhookEvent{
		Gateway: kind,
		Status:  models.WebhookStatusReceived,
		Payload: json.RawMessage(body),
	}

	if !proc.VerifyWebhookSignature(body, signature) {
		event.Status = models.WebhookStatusRejected
		event.Error = "signature verification failed"
		s.journal(ctx, event)
		s.logger.Warn("webhook signature rejected", zap.String("gateway", string(kind)))
		return engine.New(engine.KindSignatureInvalid, "invalid webhook signature")
	}
	event.SignatureValid = true

	notice, err := proc.ParseWebhook(body)
	if err != nil {
		event.Status = models.WebhookStatusRejected
		event.Error = err.Error()
		s.journal(ctx, event)
		return engine.Wrap(engine.KindValidation, "unparseable webhook payload", err)
	}
	event.OrderID = notice.OrderID

	dedupeKey := fmt.Sprintf("%s:%s:%s:%s", kind, notice.OrderID, notice.TransactionID, resultLabel(notice.Result))
	seen, err := s.redis.EventSeen(ctx, dedupeKey)
	if err != nil {
		// redis down is not a reason to drop a notification; the payment
		// row lock in finalize still makes the replay harmless
		s.logger.Warn("webhook dedupe unavailable", zap.Error(err))
	} else if seen {
		event.Status = models.WebhookStatusDuplicate
		s.journal(ctx, event)
		return engine.New(engine.KindDuplicateEvent, "event already processed")
	}

	payment, err := s.payments.FindByOrderID(ctx, notice.OrderID)
	if err != nil {
		if engine.Is(err, engine.KindNotFound) {
			// acknowledged but flagged: the gateway must not retry a
			// notification we will never be able to match
			event.Status = models.WebhookStatusUnmatched
			event.Error = "no payment for order id"
			s.journal(ctx, event)
			s.logger.Error("webhook references unknown order",
				zap.String("gateway", string(kind)),
				zap.String("order_id", notice.OrderID),
			)
			return nil
		}
		return err
	}

	if _, err := s.payments.Finalize(ctx, payment.ID, &notice.Result); err != nil {
		// the dedupe key stays unset, so the gateway's retry of this
		// delivery is processed again instead of dropped as a duplicate
		event.Status = models.WebhookStatusReceived
		event.Error = err.Error()
		s.journal(ctx, event)
		return err
	}

	// mark seen only after the transition is durably committed
	if err := s.redis.MarkEventSeen(ctx, dedupeKey, webhookDedupeWindow); err != nil {
		s.logger.Warn("webhook dedupe mark failed", zap.Error(err))
	}

	event.Status = models.WebhookStatusProcessed
	s.journal(ctx, event)

	s.logger.Info("webhook processed",
		zap.String("gateway", string(kind)),
		zap.String("order_id", notice.OrderID),
		zap.String("payment_uid", payment.UID),
		zap.Bool("success", notice.Result.Success),
	)
	return nil
}

// resultLabel folds a decision into the dedupe key so a later notification
// carrying a different outcome for the same order is not swallowed as a
// duplicate of the first.
func resultLabel(r gateway.Result) string {
	switch {
	case r.Success:
		return "success"
	case r.Pending:
		return "pending"
	default:
		return "failure"
	}
}

func (s *WebhookService) journal(ctx context.Context, event *models.WebhookEvent) {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		s.logger.Error("failed to journal webhook event", zap.Error(err))
	}
}
