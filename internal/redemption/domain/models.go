// Package domain contains the redemption order model: one row per charge
// attempt against an active mandate.
package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// OrderState represents the redemption protocol states.
type OrderState string

const (
	OrderStateNotificationInProgress OrderState = "NOTIFICATION_IN_PROGRESS"
	OrderStateNotified               OrderState = "NOTIFIED"
	OrderStateExecutionInProgress    OrderState = "EXECUTION_IN_PROGRESS"
	OrderStatePending                OrderState = "PENDING"
	OrderStateCompleted              OrderState = "COMPLETED"
	OrderStateFailed                 OrderState = "FAILED"
	OrderStateExpired                OrderState = "EXPIRED"
)

// ParseOrderState maps a raw gateway order state onto the enum. Unknown
// states resolve to PENDING (poll again later); the second return is false
// so callers can log the raw value.
func ParseOrderState(raw string) (OrderState, bool) {
	s := OrderState(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case OrderStateNotificationInProgress, OrderStateNotified,
		OrderStateExecutionInProgress, OrderStatePending,
		OrderStateCompleted, OrderStateFailed, OrderStateExpired:
		return s, true
	default:
		return OrderStatePending, false
	}
}

// IsSettled reports whether the state admits no further transitions.
func (s OrderState) IsSettled() bool {
	switch s {
	case OrderStateCompleted, OrderStateFailed, OrderStateExpired:
		return true
	default:
		return false
	}
}

// RedemptionOrder is one uniquely identified charge attempt. Merchant order
// ids are minted fresh per attempt and never reused, which keeps the
// gateway's idempotency keying correct; rows are retained for audit.
type RedemptionOrder struct {
	MerchantOrderID        string            `json:"merchant_order_id" gorm:"primaryKey;column:merchant_order_id"`
	GatewayOrderID         string            `json:"gateway_order_id" gorm:"type:text;index"`
	MerchantSubscriptionID string            `json:"merchant_subscription_id" gorm:"type:text;not null;index"`
	Amount                 int64             `json:"amount" gorm:"not null"`
	State                  OrderState        `json:"state" gorm:"type:text;not null;index"`
	TransactionID          string            `json:"transaction_id,omitempty" gorm:"type:text"`
	FailureCode            string            `json:"failure_code,omitempty" gorm:"type:text"`
	Metadata               datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt              time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (RedemptionOrder) TableName() string { return "redemption_orders" }
