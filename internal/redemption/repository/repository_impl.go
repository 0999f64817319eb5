package repository

import (
	"context"
	"errors"

	redemptiondomain "github.com/goldsip/goldsip/internal/redemption/domain"
	pkgdb "github.com/goldsip/goldsip/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() redemptiondomain.Repository {
	return &repo{}
}

// Insert persists a freshly minted order. Merchant order ids are never
// reused, so a duplicate key means the caller recycled one.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *redemptiondomain.RedemptionOrder) error {
	if err := db.WithContext(ctx).Create(order).Error; err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return redemptiondomain.ErrOrderExists
		}
		return err
	}
	return nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, merchantOrderID string) (*redemptiondomain.RedemptionOrder, error) {
	var order redemptiondomain.RedemptionOrder
	err := db.WithContext(ctx).
		Where("merchant_order_id = ?", merchantOrderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, redemptiondomain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, merchantSubscriptionID string) ([]redemptiondomain.RedemptionOrder, error) {
	var orders []redemptiondomain.RedemptionOrder
	err := db.WithContext(ctx).
		Where("merchant_subscription_id = ?", merchantSubscriptionID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, merchantOrderID string, state redemptiondomain.OrderState, transactionID, failureCode string) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE redemption_orders
		 SET state = ?,
		     transaction_id = CASE WHEN ? != '' THEN ? ELSE transaction_id END,
		     failure_code = CASE WHEN ? != '' THEN ? ELSE failure_code END,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE merchant_order_id = ?`,
		state,
		transactionID, transactionID,
		failureCode, failureCode,
		merchantOrderID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return redemptiondomain.ErrOrderNotFound
	}
	return nil
}
