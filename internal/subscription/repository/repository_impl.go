package repository

import (
	"context"
	"errors"

	subscriptiondomain "github.com/goldsip/goldsip/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) GetAll(ctx context.Context, db *gorm.DB) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) GetActiveOnly(ctx context.Context, db *gorm.DB) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status = ?", subscriptiondomain.StatusActive).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, merchantSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("merchant_subscription_id = ?", merchantSubscriptionID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscriptiondomain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	// Field-level replace on conflict; created_at keeps the original row's
	// value so audit history survives re-setup of the same id.
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "merchant_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gateway_order_id", "user_id", "status", "amount", "amount_type",
			"max_amount", "auth_workflow_type", "frequency", "start_date",
			"end_date", "updated_at",
		}),
	}).Create(sub).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, merchantSubscriptionID string, status subscriptiondomain.Status) error {
	// Single UPDATE keeps concurrent same-key writers last-write-wins
	// without corrupting the row.
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE merchant_subscription_id = ?`,
		status,
		merchantSubscriptionID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subscriptiondomain.ErrSubscriptionNotFound
	}
	return nil
}
