package domain

import (
	"context"
	"errors"
	"time"
)

// NotifyRequest declares intent to charge an active mandate.
type NotifyRequest struct {
	MerchantSubscriptionID string            `json:"merchant_subscription_id"`
	Amount                 int64             `json:"amount"`
	ExpireAt               time.Time         `json:"expire_at,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	RetryStrategy          string            `json:"retry_strategy,omitempty"`
	AutoDebit              bool              `json:"auto_debit"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks

// Service is the redemption orchestrator: the notify → execute →
// status-check protocol against an active subscription.
type Service interface {
	// Notify mints a fresh merchant order id and registers the charge
	// intent. A failed notify persists nothing; retries mint a new id.
	Notify(ctx context.Context, req NotifyRequest) (*RedemptionOrder, error)
	// Execute triggers the charge. Precondition: the referenced
	// subscription's cached status is ACTIVE, otherwise it fails with
	// ErrSubscriptionNotActive before any gateway call. An ambiguous
	// gateway answer is resolved through CheckStatus, never by retrying
	// the execute.
	Execute(ctx context.Context, merchantOrderID, merchantSubscriptionID string) (*RedemptionOrder, error)
	// CheckStatus is a side-effect-free read of the gateway-side order
	// state, always safe to repeat.
	CheckStatus(ctx context.Context, merchantOrderID string) (*RedemptionOrder, error)
}

var (
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrOrderNotFound         = errors.New("redemption_order_not_found")
	ErrOrderExists           = errors.New("redemption_order_exists")
	ErrOrderNotExecutable    = errors.New("redemption_order_not_executable")
	ErrSubscriptionNotActive = errors.New("subscription_not_active")
	ErrSubscriptionMismatch  = errors.New("subscription_mismatch")
)
