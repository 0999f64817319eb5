// Package domain defines the inbound gateway webhook contract.
package domain

import (
	"context"
	"errors"
)

// Gateway event vocabulary. Webhook schemas evolve independently of this
// consumer; anything not listed here is logged and ignored.
const (
	EventSubscriptionActivated = "SUBSCRIPTION_ACTIVATED"
	EventSubscriptionPaused    = "SUBSCRIPTION_PAUSED"
	EventSubscriptionUnpaused  = "SUBSCRIPTION_UNPAUSED"
	EventSubscriptionCancelled = "SUBSCRIPTION_CANCELLED"
	EventSubscriptionRevoked   = "SUBSCRIPTION_REVOKED"
	EventSubscriptionFailed    = "SUBSCRIPTION_FAILED"
	EventSubscriptionExpired   = "SUBSCRIPTION_EXPIRED"

	EventNotificationCompleted = "SUBSCRIPTION_NOTIFICATION_COMPLETED"
	EventNotificationFailed    = "SUBSCRIPTION_NOTIFICATION_FAILED"
	EventRedemptionCompleted   = "SUBSCRIPTION_REDEMPTION_ORDER_COMPLETED"
	EventRedemptionFailed      = "SUBSCRIPTION_REDEMPTION_ORDER_FAILED"
)

// Event is a parsed webhook payload. Consumed once, never stored.
type Event struct {
	Type                   string
	MerchantSubscriptionID string
	MerchantOrderID        string
	State                  string
	TransactionID          string
	Raw                    []byte
}

//go:generate mockgen -source=model.go -destination=./mocks/mock_service.go -package=mocks

// Service validates, parses, and applies gateway webhook events.
type Service interface {
	// Authenticate checks the Authorization header against the configured
	// secret. With no secret configured it fails closed unless the
	// insecure escape hatch is explicitly enabled.
	Authenticate(header string) bool
	Parse(raw []byte) (*Event, error)
	// Apply feeds the event's state transition into the local stores.
	// Unknown event types are ignored, not errors.
	Apply(ctx context.Context, event *Event) error
	// Ingest is Authenticate+Parse+Apply for the HTTP handler.
	Ingest(ctx context.Context, authHeader string, raw []byte) error
}

var (
	ErrUnauthorized   = errors.New("webhook_unauthorized")
	ErrInvalidPayload = errors.New("webhook_invalid_payload")
)
