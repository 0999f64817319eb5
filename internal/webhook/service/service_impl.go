package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"

	"github.com/goldsip/goldsip/internal/config"
	"github.com/goldsip/goldsip/internal/observability/metrics"
	redemptiondomain "github.com/goldsip/goldsip/internal/redemption/domain"
	subscriptiondomain "github.com/goldsip/goldsip/internal/subscription/domain"
	webhookdomain "github.com/goldsip/goldsip/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	subRepo subscriptiondomain.Repository
	redRepo redemptiondomain.Repository
	metrics *metrics.Metrics

	secret        string
	allowInsecure bool
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	SubRepo subscriptiondomain.Repository
	RedRepo redemptiondomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p Params) webhookdomain.Service {
	log := p.Log.Named("webhook.service")
	if p.Cfg.Webhook.Secret == "" && p.Cfg.Webhook.AllowInsecure {
		log.Warn("webhook authentication DISABLED: no secret configured and insecure bypass enabled")
	}
	return &Service{
		db:            p.DB,
		log:           log,
		subRepo:       p.SubRepo,
		redRepo:       p.RedRepo,
		metrics:       p.Metrics,
		secret:        p.Cfg.Webhook.Secret,
		allowInsecure: p.Cfg.Webhook.AllowInsecure,
	}
}

// Authenticate implements domain.Service.
func (s *Service) Authenticate(header string) bool {
	if s.secret == "" {
		if s.allowInsecure {
			s.log.Warn("accepting webhook without authentication (insecure bypass)")
			return true
		}
		// fail closed: missing credentials reject everything
		return false
	}

	header = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Bearer "))
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(s.secret)) == 1
}

type webhookEnvelope struct {
	Type    string `json:"type"`
	Payload struct {
		MerchantSubscriptionID string `json:"merchantSubscriptionId"`
		MerchantOrderID        string `json:"merchantOrderId"`
		State                  string `json:"state"`
		TransactionID          string `json:"transactionId"`
	} `json:"payload"`
}

// Parse implements domain.Service.
func (s *Service) Parse(raw []byte) (*webhookdomain.Event, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, webhookdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, webhookdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(env.Payload.MerchantSubscriptionID) == "" {
		return nil, webhookdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(env.Payload.State) == "" {
		return nil, webhookdomain.ErrInvalidPayload
	}

	return &webhookdomain.Event{
		Type:                   strings.ToUpper(strings.TrimSpace(env.Type)),
		MerchantSubscriptionID: strings.TrimSpace(env.Payload.MerchantSubscriptionID),
		MerchantOrderID:        strings.TrimSpace(env.Payload.MerchantOrderID),
		State:                  strings.ToUpper(strings.TrimSpace(env.Payload.State)),
		TransactionID:          strings.TrimSpace(env.Payload.TransactionID),
		Raw:                    raw,
	}, nil
}

// Apply implements domain.Service.
func (s *Service) Apply(ctx context.Context, event *webhookdomain.Event) error {
	switch event.Type {
	case webhookdomain.EventSubscriptionActivated:
		return s.applySubscriptionStatus(ctx, event, subscriptiondomain.StatusActive)
	case webhookdomain.EventSubscriptionPaused:
		return s.applySubscriptionStatus(ctx, event, subscriptiondomain.StatusPaused)
	case webhookdomain.EventSubscriptionUnpaused:
		return s.applySubscriptionStatus(ctx, event, subscriptiondomain.StatusActive)
	case webhookdomain.EventSubscriptionCancelled:
		return s.applySubscriptionStatus(ctx, event, subscriptiondomain.StatusCancelled)
	case webhookdomain.EventSubscriptionRevoked:
		return s.applySubscriptionStatus(ctx, event, subscriptiondomain.StatusRevoked)
	case webhookdomain.EventSubscriptionFailed:
		return s.applySubscriptionStatus(ctx, event, subscriptiondomain.StatusFailed)
	case webhookdomain.EventSubscriptionExpired:
		return s.applySubscriptionStatus(ctx, event, subscriptiondomain.StatusExpired)

	case webhookdomain.EventNotificationCompleted:
		return s.applyOrderState(ctx, event, redemptiondomain.OrderStateNotified)
	case webhookdomain.EventNotificationFailed:
		return s.applyOrderState(ctx, event, redemptiondomain.OrderStateFailed)
	case webhookdomain.EventRedemptionCompleted:
		// A settled charge leaves the subscription ACTIVE; only the
		// redemption order moves.
		return s.applyOrderState(ctx, event, redemptiondomain.OrderStateCompleted)
	case webhookdomain.EventRedemptionFailed:
		return s.applyOrderState(ctx, event, redemptiondomain.OrderStateFailed)

	default:
		s.log.Info("ignoring unknown webhook event type",
			zap.String("type", event.Type),
			zap.String("merchant_subscription_id", event.MerchantSubscriptionID),
		)
		s.metrics.ObserveWebhook(event.Type, "ignored")
		return nil
	}
}

func (s *Service) applySubscriptionStatus(ctx context.Context, event *webhookdomain.Event, status subscriptiondomain.Status) error {
	sub, err := s.subRepo.Find(ctx, s.db, event.MerchantSubscriptionID)
	if err != nil {
		s.metrics.ObserveWebhook(event.Type, "error")
		return err
	}

	if sub.Status == status {
		s.metrics.ObserveWebhook(event.Type, "unchanged")
		return nil
	}
	if !subscriptiondomain.CanTransition(sub.Status, status) {
		s.log.Warn("webhook attempted transition out of terminal status",
			zap.String("merchant_subscription_id", event.MerchantSubscriptionID),
			zap.String("from", string(sub.Status)),
			zap.String("to", string(status)),
		)
		s.metrics.ObserveWebhook(event.Type, "rejected")
		return nil
	}

	if err := s.subRepo.UpdateStatus(ctx, s.db, event.MerchantSubscriptionID, status); err != nil {
		s.metrics.ObserveWebhook(event.Type, "error")
		return err
	}

	s.log.Info("subscription status updated from webhook",
		zap.String("merchant_subscription_id", event.MerchantSubscriptionID),
		zap.String("type", event.Type),
		zap.String("status", string(status)),
	)
	s.metrics.ObserveWebhook(event.Type, "applied")
	return nil
}

func (s *Service) applyOrderState(ctx context.Context, event *webhookdomain.Event, state redemptiondomain.OrderState) error {
	if event.MerchantOrderID == "" {
		s.metrics.ObserveWebhook(event.Type, "error")
		return webhookdomain.ErrInvalidPayload
	}

	err := s.redRepo.UpdateState(ctx, s.db, event.MerchantOrderID, state, event.TransactionID, "")
	if err != nil {
		s.metrics.ObserveWebhook(event.Type, "error")
		return err
	}

	s.log.Info("redemption order updated from webhook",
		zap.String("merchant_order_id", event.MerchantOrderID),
		zap.String("type", event.Type),
		zap.String("state", string(state)),
	)
	s.metrics.ObserveWebhook(event.Type, "applied")
	return nil
}

// Ingest implements domain.Service.
func (s *Service) Ingest(ctx context.Context, authHeader string, raw []byte) error {
	if !s.Authenticate(authHeader) {
		return webhookdomain.ErrUnauthorized
	}
	event, err := s.Parse(raw)
	if err != nil {
		return err
	}
	return s.Apply(ctx, event)
}
