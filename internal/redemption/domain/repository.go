package domain

import (
	"context"

	"gorm.io/gorm"
)

//go:generate mockgen -source=repository.go -destination=./mocks/mock_repository.go -package=mocks

// Repository persists redemption orders. Append-only plus state updates;
// settled rows are retained for audit.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *RedemptionOrder) error
	Find(ctx context.Context, db *gorm.DB, merchantOrderID string) (*RedemptionOrder, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, merchantSubscriptionID string) ([]RedemptionOrder, error)
	UpdateState(ctx context.Context, db *gorm.DB, merchantOrderID string, state OrderState, transactionID, failureCode string) error
}
