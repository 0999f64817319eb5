package domain

import (
	"context"
)

//go:generate mockgen -source=client.go -destination=./mocks/mock_client.go -package=mocks

// Client is the authenticated HTTP surface of the payment gateway. Every
// call is a single-shot blocking request; retries are the caller's call.
type Client interface {
	CreateSubscription(ctx context.Context, req SetupRequest) (*SetupResponse, error)
	SubscriptionStatus(ctx context.Context, merchantSubscriptionID string) (*SubscriptionStatusResponse, error)
	CancelSubscription(ctx context.Context, merchantSubscriptionID string) error
	PauseSubscription(ctx context.Context, merchantSubscriptionID string, window PauseWindow) error
	UnpauseSubscription(ctx context.Context, merchantSubscriptionID string) error
	RevokeSubscription(ctx context.Context, merchantSubscriptionID string) error

	NotifyRedemption(ctx context.Context, req NotifyRequest) (*NotifyResponse, error)
	ExecuteRedemption(ctx context.Context, merchantOrderID string) (*ExecuteResult, error)
	RedemptionOrderStatus(ctx context.Context, merchantOrderID string) (*OrderStatusResponse, error)
}

// TokenProvider yields a currently valid bearer token, refreshing lazily.
// Implementations serialize refreshes so concurrent callers share a single
// in-flight grant.
type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, error)
}
