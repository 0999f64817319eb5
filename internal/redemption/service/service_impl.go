package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/goldsip/goldsip/internal/clock"
	gatewaydomain "github.com/goldsip/goldsip/internal/gateway/domain"
	"github.com/goldsip/goldsip/internal/observability/metrics"
	redemptiondomain "github.com/goldsip/goldsip/internal/redemption/domain"
	subscriptiondomain "github.com/goldsip/goldsip/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    redemptiondomain.Repository
	subRepo subscriptiondomain.Repository
	gateway gatewaydomain.Client
	metrics *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    redemptiondomain.Repository
	SubRepo subscriptiondomain.Repository
	Gateway gatewaydomain.Client
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) redemptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("redemption.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		subRepo: p.SubRepo,
		gateway: p.Gateway,
		metrics: p.Metrics,
	}
}

// Notify implements domain.Service. Every call mints a fresh merchant order
// id; a failed notify's id is never carried into a retry.
func (s *Service) Notify(ctx context.Context, req redemptiondomain.NotifyRequest) (*redemptiondomain.RedemptionOrder, error) {
	if req.Amount <= 0 {
		return nil, redemptiondomain.ErrInvalidAmount
	}

	sub, err := s.subRepo.Find(ctx, s.db, req.MerchantSubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscriptiondomain.StatusActive {
		return nil, redemptiondomain.ErrSubscriptionNotActive
	}

	merchantOrderID := fmt.Sprintf("RMO%s", s.genID.Generate())

	retryStrategy := req.RetryStrategy
	if retryStrategy == "" {
		retryStrategy = "STANDARD"
	}

	var expireAt int64
	if !req.ExpireAt.IsZero() {
		expireAt = req.ExpireAt.UnixMilli()
	}

	resp, err := s.gateway.NotifyRedemption(ctx, gatewaydomain.NotifyRequest{
		MerchantOrderID: merchantOrderID,
		Amount:          req.Amount,
		ExpireAt:        expireAt,
		MetaInfo:        req.Metadata,
		PaymentFlow: gatewaydomain.NotifyPaymentFlow{
			Type:                    gatewaydomain.PaymentFlowTypeRedemption,
			MerchantSubscriptionID:  req.MerchantSubscriptionID,
			RedemptionRetryStrategy: retryStrategy,
			AutoDebit:               req.AutoDebit,
		},
	})
	if err != nil {
		s.metrics.ObserveRedemption("notify", "error")
		s.log.Warn("redemption notify rejected",
			zap.String("merchant_order_id", merchantOrderID),
			zap.String("merchant_subscription_id", req.MerchantSubscriptionID),
			zap.Error(err),
		)
		return nil, err
	}

	state, known := redemptiondomain.ParseOrderState(resp.State)
	if !known {
		state = redemptiondomain.OrderStateNotified
	}

	now := s.clock.Now()
	order := &redemptiondomain.RedemptionOrder{
		MerchantOrderID:        merchantOrderID,
		GatewayOrderID:         resp.OrderID,
		MerchantSubscriptionID: req.MerchantSubscriptionID,
		Amount:                 req.Amount,
		State:                  state,
		Metadata:               toJSONMap(req.Metadata),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		return nil, err
	}

	s.metrics.ObserveRedemption("notify", "ok")
	s.log.Info("redemption notified",
		zap.String("merchant_order_id", merchantOrderID),
		zap.String("gateway_order_id", resp.OrderID),
		zap.Int64("amount", req.Amount),
	)
	return order, nil
}

// Execute implements domain.Service.
func (s *Service) Execute(ctx context.Context, merchantOrderID, merchantSubscriptionID string) (*redemptiondomain.RedemptionOrder, error) {
	order, err := s.repo.Find(ctx, s.db, merchantOrderID)
	if err != nil {
		return nil, err
	}
	if order.MerchantSubscriptionID != merchantSubscriptionID {
		return nil, redemptiondomain.ErrSubscriptionMismatch
	}
	if order.State == redemptiondomain.OrderStateCompleted {
		return order, nil
	}
	if order.State.IsSettled() {
		return nil, redemptiondomain.ErrOrderNotExecutable
	}

	// Precondition before any gateway call: the mandate must be ACTIVE in
	// the local cache.
	sub, err := s.subRepo.Find(ctx, s.db, merchantSubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscriptiondomain.StatusActive {
		s.metrics.ObserveRedemption("execute", "precondition_failed")
		return nil, redemptiondomain.ErrSubscriptionNotActive
	}

	if err := s.repo.UpdateState(ctx, s.db, merchantOrderID, redemptiondomain.OrderStateExecutionInProgress, "", ""); err != nil {
		return nil, err
	}

	res, err := s.gateway.ExecuteRedemption(ctx, merchantOrderID)
	if err != nil {
		s.metrics.ObserveRedemption("execute", "transport_error")
		return nil, err
	}

	switch res.Outcome {
	case gatewaydomain.OutcomeCompleted:
		state, known := redemptiondomain.ParseOrderState(res.State)
		if !known {
			s.log.Warn("gateway returned unrecognized order state on execute",
				zap.String("merchant_order_id", merchantOrderID),
				zap.String("raw_state", res.State),
			)
		}
		if err := s.repo.UpdateState(ctx, s.db, merchantOrderID, state, res.TransactionID, ""); err != nil {
			return nil, err
		}
		s.metrics.ObserveRedemption("execute", "ok")
		return s.repo.Find(ctx, s.db, merchantOrderID)

	case gatewaydomain.OutcomeFailed:
		failureCode := ""
		if res.Err != nil {
			failureCode = res.Err.Code
		}
		if err := s.repo.UpdateState(ctx, s.db, merchantOrderID, redemptiondomain.OrderStateFailed, "", failureCode); err != nil {
			return nil, err
		}
		s.metrics.ObserveRedemption("execute", "failed")
		s.log.Info("redemption execute failed",
			zap.String("merchant_order_id", merchantOrderID),
			zap.String("failure_code", failureCode),
		)
		return s.repo.Find(ctx, s.db, merchantOrderID)

	default:
		// The gateway may have settled the order concurrently. Resolve via
		// the idempotent status read, never a second execute.
		s.metrics.ObserveRedemption("execute", "ambiguous")
		s.log.Info("redemption execute ambiguous, falling back to status check",
			zap.String("merchant_order_id", merchantOrderID),
		)
		return s.CheckStatus(ctx, merchantOrderID)
	}
}

// CheckStatus implements domain.Service.
func (s *Service) CheckStatus(ctx context.Context, merchantOrderID string) (*redemptiondomain.RedemptionOrder, error) {
	order, err := s.repo.Find(ctx, s.db, merchantOrderID)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.RedemptionOrderStatus(ctx, merchantOrderID)
	if err != nil {
		s.metrics.ObserveRedemption("status", "error")
		return nil, err
	}

	state, known := redemptiondomain.ParseOrderState(resp.State)
	if !known {
		s.log.Warn("gateway returned unrecognized order state",
			zap.String("merchant_order_id", merchantOrderID),
			zap.String("raw_state", resp.State),
		)
	}

	transactionID := resp.SettledTransactionID()
	if state != order.State || (transactionID != "" && transactionID != order.TransactionID) {
		if err := s.repo.UpdateState(ctx, s.db, merchantOrderID, state, transactionID, ""); err != nil {
			return nil, err
		}
	}

	s.metrics.ObserveRedemption("status", "ok")
	return s.repo.Find(ctx, s.db, merchantOrderID)
}

func toJSONMap(m map[string]string) datatypes.JSONMap {
	if len(m) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
