package domain

import (
	"context"

	"gorm.io/gorm"
)

//go:generate mockgen -source=repository.go -destination=./mocks/mock_repository.go -package=mocks

// Repository is the Local Subscription Store: a durable cache of mandate
// records keyed by merchant subscription id. All writes are last-write-wins;
// the gateway, not this store, is authoritative.
type Repository interface {
	GetAll(ctx context.Context, db *gorm.DB) ([]Subscription, error)
	GetActiveOnly(ctx context.Context, db *gorm.DB) ([]Subscription, error)
	Find(ctx context.Context, db *gorm.DB, merchantSubscriptionID string) (*Subscription, error)
	// Upsert inserts the record or replaces its fields wholesale.
	Upsert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	UpdateStatus(ctx context.Context, db *gorm.DB, merchantSubscriptionID string, status Status) error
}
