package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/goldsip/goldsip/internal/clock"
	"github.com/goldsip/goldsip/internal/config"
	gatewaydomain "github.com/goldsip/goldsip/internal/gateway/domain"
	"github.com/goldsip/goldsip/internal/observability/metrics"
	"github.com/goldsip/goldsip/internal/ratelimit"
	subscriptiondomain "github.com/goldsip/goldsip/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     subscriptiondomain.Repository
	gateway  gatewaydomain.Client
	metrics  *metrics.Metrics
	debounce *ratelimit.Debouncer

	concurrency int
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Cfg     config.Config
	Repo    subscriptiondomain.Repository
	Gateway gatewaydomain.Client
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	concurrency := p.Cfg.Reconcile.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		gateway:     p.Gateway,
		metrics:     p.Metrics,
		debounce:    ratelimit.NewDebouncer(p.Clock, p.Cfg.Reconcile.DebounceWindow),
		concurrency: concurrency,
	}
}

// Setup mints fresh merchant identifiers, registers the mandate with the
// gateway, and persists a PENDING subscription. Nothing is persisted when
// the gateway call fails.
func (s *Service) Setup(ctx context.Context, req subscriptiondomain.SetupRequest) (*subscriptiondomain.SetupResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, subscriptiondomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, subscriptiondomain.ErrInvalidAmount
	}
	if !subscriptiondomain.ValidFrequency(req.Frequency) {
		return nil, subscriptiondomain.ErrInvalidFrequency
	}

	now := s.clock.Now()
	endDate := req.EndDate
	if endDate.IsZero() {
		// open-ended mandates get the gateway's maximum validity
		endDate = now.AddDate(10, 0, 0)
	}

	maxAmount := req.MaxAmount
	if maxAmount == 0 {
		maxAmount = req.Amount
	}

	merchantOrderID := fmt.Sprintf("MO%s", s.genID.Generate())
	merchantSubscriptionID := fmt.Sprintf("MSUB%s", s.genID.Generate())

	resp, err := s.gateway.CreateSubscription(ctx, gatewaydomain.SetupRequest{
		MerchantOrderID: merchantOrderID,
		Amount:          req.Amount,
		PaymentFlow: gatewaydomain.SetupPaymentFlow{
			MerchantSubscriptionID: merchantSubscriptionID,
			AuthWorkflowType:       req.AuthWorkflowType,
			AmountType:             req.AmountType,
			MaxAmount:              maxAmount,
			Frequency:              string(req.Frequency),
			ExpireAt:               endDate.UnixMilli(),
		},
	})
	if err != nil {
		s.log.Warn("mandate setup rejected by gateway",
			zap.String("merchant_subscription_id", merchantSubscriptionID),
			zap.Error(err),
		)
		return nil, err
	}

	sub := subscriptiondomain.Subscription{
		MerchantSubscriptionID: merchantSubscriptionID,
		GatewayOrderID:         resp.OrderID,
		UserID:                 req.UserID,
		Status:                 subscriptiondomain.StatusPending,
		Amount:                 req.Amount,
		AmountType:             req.AmountType,
		MaxAmount:              maxAmount,
		AuthWorkflowType:       req.AuthWorkflowType,
		Frequency:              req.Frequency,
		StartDate:              now,
		EndDate:                endDate,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.Upsert(ctx, s.db, &sub); err != nil {
		return nil, err
	}

	s.log.Info("mandate setup created",
		zap.String("merchant_subscription_id", merchantSubscriptionID),
		zap.String("gateway_order_id", resp.OrderID),
		zap.Int64("amount", req.Amount),
		zap.String("frequency", string(req.Frequency)),
	)

	return &subscriptiondomain.SetupResponse{
		Subscription: sub,
		IntentURL:    resp.IntentURL,
	}, nil
}

// List implements domain.Service.
func (s *Service) List(ctx context.Context) (subscriptiondomain.Classification, error) {
	subs, err := s.repo.GetAll(ctx, s.db)
	if err != nil {
		return subscriptiondomain.Classification{}, err
	}
	return s.Classify(subs), nil
}

// Classify partitions subscriptions by status bucket. Unrecognized statuses
// land in pending; nothing is ever dropped.
func (s *Service) Classify(subs []subscriptiondomain.Subscription) subscriptiondomain.Classification {
	var out subscriptiondomain.Classification
	for _, sub := range subs {
		switch sub.Status.Bucket() {
		case subscriptiondomain.BucketActive:
			out.Active = append(out.Active, sub)
		case subscriptiondomain.BucketTerminal:
			out.Terminal = append(out.Terminal, sub)
		default:
			out.Pending = append(out.Pending, sub)
		}
	}
	return out
}

// ReconcileOne implements domain.Service.
func (s *Service) ReconcileOne(ctx context.Context, merchantSubscriptionID string) (subscriptiondomain.Status, error) {
	status, _, err := s.reconcile(ctx, merchantSubscriptionID)
	return status, err
}

func (s *Service) reconcile(ctx context.Context, merchantSubscriptionID string) (subscriptiondomain.Status, bool, error) {
	sub, err := s.repo.Find(ctx, s.db, merchantSubscriptionID)
	if err != nil {
		return "", false, err
	}

	resp, err := s.gateway.SubscriptionStatus(ctx, merchantSubscriptionID)
	if err != nil {
		s.observeReconcile("error")
		return "", false, err
	}

	next, known := subscriptiondomain.ParseStatus(resp.State)
	if !known {
		s.log.Warn("gateway returned unrecognized subscription state",
			zap.String("merchant_subscription_id", merchantSubscriptionID),
			zap.String("raw_state", resp.State),
		)
	}

	if next == sub.Status {
		s.observeReconcile("unchanged")
		return next, false, nil
	}

	if !subscriptiondomain.CanTransition(sub.Status, next) {
		s.log.Warn("ignoring transition out of terminal status",
			zap.String("merchant_subscription_id", merchantSubscriptionID),
			zap.String("from", string(sub.Status)),
			zap.String("to", string(next)),
		)
		s.observeReconcile("unchanged")
		return sub.Status, false, nil
	}

	if err := s.repo.UpdateStatus(ctx, s.db, merchantSubscriptionID, next); err != nil {
		s.observeReconcile("error")
		return "", false, err
	}

	s.log.Info("subscription status reconciled",
		zap.String("merchant_subscription_id", merchantSubscriptionID),
		zap.String("from", string(sub.Status)),
		zap.String("to", string(next)),
	)
	s.observeReconcile("updated")
	return next, true, nil
}

// ReconcileBatch implements domain.Service. Chunks preserve input order; at
// most the configured number of status calls are in flight at once, and a
// chunk completes before the next begins.
func (s *Service) ReconcileBatch(ctx context.Context, subs []subscriptiondomain.Subscription) (subscriptiondomain.BatchResult, error) {
	result := subscriptiondomain.BatchResult{Total: len(subs)}
	if len(subs) == 0 {
		return result, nil
	}

	if !s.debounce.Allow() {
		s.observeReconcile("debounced")
		return subscriptiondomain.BatchResult{}, subscriptiondomain.ErrReconcileDebounced
	}

	var mu sync.Mutex
	for start := 0; start < len(subs); start += s.concurrency {
		end := start + s.concurrency
		if end > len(subs) {
			end = len(subs)
		}

		var wg sync.WaitGroup
		for _, sub := range subs[start:end] {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, updated, err := s.reconcile(ctx, id)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					result.Failed++
				case updated:
					result.Updated++
				default:
					result.Unchanged++
				}
			}(sub.MerchantSubscriptionID)
		}
		wg.Wait()
	}

	return result, nil
}

// ReconcileAll implements domain.Service.
func (s *Service) ReconcileAll(ctx context.Context) (subscriptiondomain.BatchResult, error) {
	subs, err := s.repo.GetAll(ctx, s.db)
	if err != nil {
		return subscriptiondomain.BatchResult{}, err
	}

	pending := make([]subscriptiondomain.Subscription, 0, len(subs))
	for _, sub := range subs {
		if !sub.Status.IsTerminal() {
			pending = append(pending, sub)
		}
	}
	return s.ReconcileBatch(ctx, pending)
}

// Cancel implements domain.Service. The gateway cancel endpoint answers
// synchronously, so the cached status moves straight to CANCELLED.
func (s *Service) Cancel(ctx context.Context, merchantSubscriptionID string) error {
	sub, err := s.repo.Find(ctx, s.db, merchantSubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == subscriptiondomain.StatusCancelled {
		return nil
	}
	if sub.Status.IsTerminal() {
		return subscriptiondomain.ErrSubscriptionTerminal
	}

	if err := s.gateway.CancelSubscription(ctx, merchantSubscriptionID); err != nil {
		return err
	}

	s.log.Info("subscription cancelled", zap.String("merchant_subscription_id", merchantSubscriptionID))
	return s.repo.UpdateStatus(ctx, s.db, merchantSubscriptionID, subscriptiondomain.StatusCancelled)
}

// Pause implements domain.Service. Pausing an already paused (or pausing)
// subscription is an idempotent no-op.
func (s *Service) Pause(ctx context.Context, req subscriptiondomain.PauseRequest) error {
	if req.PauseStart.IsZero() || req.PauseEnd.IsZero() || !req.PauseStart.Before(req.PauseEnd) {
		return subscriptiondomain.ErrInvalidPauseWindow
	}

	sub, err := s.repo.Find(ctx, s.db, req.MerchantSubscriptionID)
	if err != nil {
		return err
	}
	switch sub.Status {
	case subscriptiondomain.StatusPaused, subscriptiondomain.StatusPauseInProgress:
		return nil
	}
	if sub.Status.IsTerminal() {
		return subscriptiondomain.ErrSubscriptionTerminal
	}

	window := gatewaydomain.PauseWindow{Start: req.PauseStart, End: req.PauseEnd}
	if err := s.gateway.PauseSubscription(ctx, req.MerchantSubscriptionID, window); err != nil {
		return err
	}

	s.log.Info("subscription pause requested",
		zap.String("merchant_subscription_id", req.MerchantSubscriptionID),
		zap.Time("pause_start", req.PauseStart),
		zap.Time("pause_end", req.PauseEnd),
	)
	return s.repo.UpdateStatus(ctx, s.db, req.MerchantSubscriptionID, subscriptiondomain.StatusPauseInProgress)
}

// Unpause implements domain.Service.
func (s *Service) Unpause(ctx context.Context, merchantSubscriptionID string) error {
	sub, err := s.repo.Find(ctx, s.db, merchantSubscriptionID)
	if err != nil {
		return err
	}
	switch sub.Status {
	case subscriptiondomain.StatusActive, subscriptiondomain.StatusUnpauseInProgress:
		return nil
	}
	if sub.Status.IsTerminal() {
		return subscriptiondomain.ErrSubscriptionTerminal
	}

	if err := s.gateway.UnpauseSubscription(ctx, merchantSubscriptionID); err != nil {
		return err
	}

	s.log.Info("subscription unpause requested", zap.String("merchant_subscription_id", merchantSubscriptionID))
	return s.repo.UpdateStatus(ctx, s.db, merchantSubscriptionID, subscriptiondomain.StatusUnpauseInProgress)
}

// Revoke implements domain.Service.
func (s *Service) Revoke(ctx context.Context, merchantSubscriptionID string) error {
	sub, err := s.repo.Find(ctx, s.db, merchantSubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == subscriptiondomain.StatusRevoked || sub.Status == subscriptiondomain.StatusRevokeInProgress {
		return nil
	}
	if sub.Status.IsTerminal() {
		return subscriptiondomain.ErrSubscriptionTerminal
	}

	if err := s.gateway.RevokeSubscription(ctx, merchantSubscriptionID); err != nil {
		return err
	}

	s.log.Info("subscription revoke requested", zap.String("merchant_subscription_id", merchantSubscriptionID))
	return s.repo.UpdateStatus(ctx, s.db, merchantSubscriptionID, subscriptiondomain.StatusRevokeInProgress)
}

func (s *Service) observeReconcile(result string) {
	s.metrics.ObserveReconciliation(result)
}
