// Package domain contains the subscription model and the status machine for
// recurring gold-savings mandates.
package domain

import (
	"strings"
	"time"
)

// Status represents lifecycle states for an autopay mandate subscription.
type Status string

const (
	StatusPending              Status = "PENDING"
	StatusActivationInProgress Status = "ACTIVATION_IN_PROGRESS"
	StatusActive               Status = "ACTIVE"
	StatusPauseInProgress      Status = "PAUSE_IN_PROGRESS"
	StatusPaused               Status = "PAUSED"
	StatusUnpauseInProgress    Status = "UNPAUSE_IN_PROGRESS"
	StatusCancelInProgress     Status = "CANCEL_IN_PROGRESS"
	StatusCancelled            Status = "CANCELLED"
	StatusRevokeInProgress     Status = "REVOKE_IN_PROGRESS"
	StatusRevoked              Status = "REVOKED"
	StatusFailed               Status = "FAILED"
	StatusExpired              Status = "EXPIRED"

	// StatusUnknown carries gateway states this build does not recognize.
	// It classifies as pending so newer gateway vocabulary degrades to
	// "still settling" instead of being dropped.
	StatusUnknown Status = "UNKNOWN"
)

var knownStatuses = map[Status]struct{}{
	StatusPending:              {},
	StatusActivationInProgress: {},
	StatusActive:               {},
	StatusPauseInProgress:      {},
	StatusPaused:               {},
	StatusUnpauseInProgress:    {},
	StatusCancelInProgress:     {},
	StatusCancelled:            {},
	StatusRevokeInProgress:     {},
	StatusRevoked:              {},
	StatusFailed:               {},
	StatusExpired:              {},
}

// ParseStatus maps a raw gateway state onto the closed status enum. The
// second return is false when the state is unrecognized and the caller got
// StatusUnknown; callers are expected to log the raw value.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := knownStatuses[s]; ok {
		return s, true
	}
	return StatusUnknown, false
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusRevoked, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// Bucket is the classification target for a status.
type Bucket int

const (
	BucketActive Bucket = iota
	BucketPending
	BucketTerminal
)

// Bucket places a status into its classification bucket. Unknown states
// land in pending, never dropped.
func (s Status) Bucket() Bucket {
	switch {
	case s == StatusActive:
		return BucketActive
	case s.IsTerminal():
		return BucketTerminal
	default:
		return BucketPending
	}
}

// CanTransition enforces the subscription state machine's binding
// invariant: a terminal status never moves again. Same-status transitions
// are allowed as no-ops; everything else follows the gateway, which owns
// the authoritative machine:
//
//	PENDING -> ACTIVATION_IN_PROGRESS -> ACTIVE
//	ACTIVE -> PAUSE_IN_PROGRESS -> PAUSED -> UNPAUSE_IN_PROGRESS -> ACTIVE
//	ACTIVE|PENDING|PAUSED -> CANCEL_IN_PROGRESS -> CANCELLED
//	ACTIVE|PENDING|PAUSED -> REVOKE_IN_PROGRESS -> REVOKED
//	PENDING -> FAILED | EXPIRED
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return !from.IsTerminal()
}

// Frequency is the mandate debit cadence.
type Frequency string

const (
	FrequencyDaily       Frequency = "DAILY"
	FrequencyWeekly      Frequency = "WEEKLY"
	FrequencyFortnightly Frequency = "FORTNIGHTLY"
	FrequencyMonthly     Frequency = "MONTHLY"
	FrequencyQuarterly   Frequency = "QUARTERLY"
	FrequencyHalfYearly  Frequency = "HALFYEARLY"
	FrequencyYearly      Frequency = "YEARLY"
)

// ValidFrequency reports whether f is a supported cadence.
func ValidFrequency(f Frequency) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyFortnightly, FrequencyMonthly,
		FrequencyQuarterly, FrequencyHalfYearly, FrequencyYearly:
		return true
	default:
		return false
	}
}

// Subscription is the locally cached record of a recurring mandate. The
// gateway is authoritative; this row is the source of truth only when the
// gateway is unreachable. Terminal rows are retained for audit.
type Subscription struct {
	MerchantSubscriptionID string    `json:"merchant_subscription_id" gorm:"primaryKey;column:merchant_subscription_id"`
	GatewayOrderID         string    `json:"gateway_order_id" gorm:"type:text;index"`
	UserID                 string    `json:"user_id" gorm:"type:text;not null;index"`
	Status                 Status    `json:"status" gorm:"type:text;not null;index"`
	Amount                 int64     `json:"amount" gorm:"not null"`
	AmountType             string    `json:"amount_type" gorm:"type:text"`
	MaxAmount              int64     `json:"max_amount"`
	AuthWorkflowType       string    `json:"auth_workflow_type" gorm:"type:text"`
	Frequency              Frequency `json:"frequency" gorm:"type:text;not null"`
	StartDate              time.Time `json:"start_date"`
	EndDate                time.Time `json:"end_date"`
	CreatedAt              time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
