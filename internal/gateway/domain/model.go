// Package domain defines the payment gateway contract: wire types for the
// mandate and redemption endpoints, and the typed failures the orchestrators
// branch on.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Gateway error codes the orchestrators care about. Everything else is
// surfaced verbatim.
const (
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	CodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeBadRequest          = "BAD_REQUEST"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
)

// Error is a gateway-reported domain failure (as opposed to a transport
// failure, which surfaces as the underlying error).
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
}

// IsOrderNotFound reports whether err is a gateway order-not-found class
// failure, the trigger for the status-check fallback on execute.
func IsOrderNotFound(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == CodeOrderNotFound || ge.Code == CodeTransactionNotFound
	}
	return false
}

var (
	ErrMissingCredentials = errors.New("gateway_missing_credentials")
	ErrTokenRefreshFailed = errors.New("gateway_token_refresh_failed")
)

// TokenResponse is the oauth token grant.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// SetupPaymentFlow carries the mandate parameters of a setup request.
type SetupPaymentFlow struct {
	MerchantSubscriptionID string `json:"merchantSubscriptionId"`
	AuthWorkflowType       string `json:"authWorkflowType"`
	AmountType             string `json:"amountType"`
	MaxAmount              int64  `json:"maxAmount"`
	Frequency              string `json:"frequency"`
	ExpireAt               int64  `json:"expireAt"`
}

// SetupRequest creates a recurring mandate.
type SetupRequest struct {
	MerchantOrderID string           `json:"merchantOrderId"`
	Amount          int64            `json:"amount"`
	PaymentFlow     SetupPaymentFlow `json:"paymentFlow"`
}

// SetupResponse is the gateway's answer to a mandate setup.
type SetupResponse struct {
	OrderID   string `json:"orderId"`
	State     string `json:"state"`
	IntentURL string `json:"intentUrl,omitempty"`
}

// SubscriptionStatusResponse is the detailed status of a mandate.
type SubscriptionStatusResponse struct {
	State           string `json:"state"`
	Amount          int64  `json:"amount,omitempty"`
	Frequency       string `json:"frequency,omitempty"`
	PauseStartDate  int64  `json:"pauseStartDate,omitempty"`
	PauseEndDate    int64  `json:"pauseEndDate,omitempty"`
	ValidityEndDate int64  `json:"validityEndDate,omitempty"`
}

// NotifyPaymentFlow declares the intent to charge an existing mandate.
type NotifyPaymentFlow struct {
	Type                    string `json:"type"`
	MerchantSubscriptionID  string `json:"merchantSubscriptionId"`
	RedemptionRetryStrategy string `json:"redemptionRetryStrategy"`
	AutoDebit               bool   `json:"autoDebit"`
}

// NotifyRequest is the first phase of the redemption protocol.
type NotifyRequest struct {
	MerchantOrderID string            `json:"merchantOrderId"`
	Amount          int64             `json:"amount"`
	ExpireAt        int64             `json:"expireAt,omitempty"`
	MetaInfo        map[string]string `json:"metaInfo,omitempty"`
	PaymentFlow     NotifyPaymentFlow `json:"paymentFlow"`
}

// PaymentFlowTypeRedemption is the only notify flow type this service uses.
const PaymentFlowTypeRedemption = "SUBSCRIPTION_REDEMPTION"

// NotifyResponse acknowledges a redemption notification.
type NotifyResponse struct {
	OrderID  string `json:"orderId"`
	State    string `json:"state"`
	ExpireAt int64  `json:"expireAt,omitempty"`
}

// ExecuteOutcome classifies the result of an execute call so the
// orchestrator branches on an explicit union instead of inspecting error
// codes.
type ExecuteOutcome int

const (
	OutcomeCompleted ExecuteOutcome = iota
	OutcomeFailed
	OutcomeAmbiguous
)

func (o ExecuteOutcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "COMPLETED"
	case OutcomeFailed:
		return "FAILED"
	default:
		return "AMBIGUOUS"
	}
}

// ExecuteResult is the outcome of the execute phase. TransactionID is set
// only when a payment rail settled. Err carries the gateway failure on
// OutcomeFailed.
type ExecuteResult struct {
	Outcome       ExecuteOutcome
	State         string
	TransactionID string
	Err           *Error
}

// PaymentDetail is one rail attempt inside an order status response.
type PaymentDetail struct {
	TransactionID string `json:"transactionId"`
	PaymentMode   string `json:"paymentMode"`
	State         string `json:"state"`
	Amount        int64  `json:"amount,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}

// OrderStatusResponse is the authoritative gateway-side state of a
// redemption order.
type OrderStatusResponse struct {
	State          string          `json:"state"`
	Amount         int64           `json:"amount,omitempty"`
	PaymentDetails []PaymentDetail `json:"paymentDetails,omitempty"`
}

// SettledTransactionID returns the transaction id of the first completed
// payment detail, or the top-level fallback when the gateway reports none.
func (r *OrderStatusResponse) SettledTransactionID() string {
	for _, d := range r.PaymentDetails {
		if d.State == "COMPLETED" && d.TransactionID != "" {
			return d.TransactionID
		}
	}
	return ""
}

// PauseWindow is the validated pause interval of a pause request.
type PauseWindow struct {
	Start time.Time
	End   time.Time
}
