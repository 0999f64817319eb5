package domain

import (
	"context"
	"errors"
	"time"
)

// SetupRequest creates a new recurring mandate for a user.
type SetupRequest struct {
	UserID           string    `json:"user_id"`
	Amount           int64     `json:"amount"`
	Frequency        Frequency `json:"frequency"`
	AmountType       string    `json:"amount_type"`
	MaxAmount        int64     `json:"max_amount"`
	AuthWorkflowType string    `json:"auth_workflow_type"`
	EndDate          time.Time `json:"end_date"`
}

// SetupResponse returns the persisted subscription together with the
// redirect handle the caller needs to complete mandate authorization.
type SetupResponse struct {
	Subscription Subscription `json:"subscription"`
	IntentURL    string       `json:"intent_url,omitempty"`
}

// Classification partitions subscriptions by status bucket. Every input
// subscription appears in exactly one bucket.
type Classification struct {
	Active   []Subscription `json:"active"`
	Pending  []Subscription `json:"pending"`
	Terminal []Subscription `json:"terminal"`
}

// PauseRequest suspends debits for a bounded window.
type PauseRequest struct {
	MerchantSubscriptionID string    `json:"merchant_subscription_id"`
	PauseStart             time.Time `json:"pause_start"`
	PauseEnd               time.Time `json:"pause_end"`
}

// BatchResult summarizes one reconciliation sweep.
type BatchResult struct {
	Total     int `json:"total"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks

// Service is the subscription lifecycle orchestrator.
type Service interface {
	Setup(ctx context.Context, req SetupRequest) (*SetupResponse, error)
	// List returns every cached subscription, classified.
	List(ctx context.Context) (Classification, error)
	Classify(subs []Subscription) Classification
	// ReconcileOne syncs a single subscription with the gateway. Idempotent:
	// an unchanged gateway state leaves the store untouched.
	ReconcileOne(ctx context.Context, merchantSubscriptionID string) (Status, error)
	// ReconcileBatch syncs the given subscriptions with bounded concurrency.
	// Re-entrant calls inside the debounce window return ErrReconcileDebounced
	// without touching the gateway.
	ReconcileBatch(ctx context.Context, subs []Subscription) (BatchResult, error)
	// ReconcileAll sweeps every non-terminal cached subscription.
	ReconcileAll(ctx context.Context) (BatchResult, error)
	Cancel(ctx context.Context, merchantSubscriptionID string) error
	Pause(ctx context.Context, req PauseRequest) error
	Unpause(ctx context.Context, merchantSubscriptionID string) error
	Revoke(ctx context.Context, merchantSubscriptionID string) error
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidFrequency     = errors.New("invalid_frequency")
	ErrInvalidPauseWindow   = errors.New("invalid_pause_window")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrSubscriptionTerminal = errors.New("subscription_terminal")
	ErrReconcileDebounced   = errors.New("reconcile_debounced")
)
