package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/goldsip/goldsip/internal/clock"
	"github.com/goldsip/goldsip/internal/config"
	gatewaydomain "github.com/goldsip/goldsip/internal/gateway/domain"
	redemptiondomain "github.com/goldsip/goldsip/internal/redemption/domain"
	redemptionrepository "github.com/goldsip/goldsip/internal/redemption/repository"
	redemptionservice "github.com/goldsip/goldsip/internal/redemption/service"
	subscriptiondomain "github.com/goldsip/goldsip/internal/subscription/domain"
	subscriptionrepository "github.com/goldsip/goldsip/internal/subscription/repository"
	subscriptionservice "github.com/goldsip/goldsip/internal/subscription/service"
	webhookservice "github.com/goldsip/goldsip/internal/webhook/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubGateway answers every call with a benign fixed response.
type stubGateway struct{}

func (stubGateway) CreateSubscription(ctx context.Context, req gatewaydomain.SetupRequest) (*gatewaydomain.SetupResponse, error) {
	return &gatewaydomain.SetupResponse{OrderID: "GW1", State: "PENDING", IntentURL: "upi://mandate"}, nil
}
func (stubGateway) SubscriptionStatus(ctx context.Context, id string) (*gatewaydomain.SubscriptionStatusResponse, error) {
	return &gatewaydomain.SubscriptionStatusResponse{State: "ACTIVE"}, nil
}
func (stubGateway) CancelSubscription(ctx context.Context, id string) error { return nil }
func (stubGateway) PauseSubscription(ctx context.Context, id string, window gatewaydomain.PauseWindow) error {
	return nil
}
func (stubGateway) UnpauseSubscription(ctx context.Context, id string) error { return nil }
func (stubGateway) RevokeSubscription(ctx context.Context, id string) error  { return nil }
func (stubGateway) NotifyRedemption(ctx context.Context, req gatewaydomain.NotifyRequest) (*gatewaydomain.NotifyResponse, error) {
	return &gatewaydomain.NotifyResponse{OrderID: "GW" + req.MerchantOrderID, State: "NOTIFIED"}, nil
}
func (stubGateway) ExecuteRedemption(ctx context.Context, merchantOrderID string) (*gatewaydomain.ExecuteResult, error) {
	return &gatewaydomain.ExecuteResult{Outcome: gatewaydomain.OutcomeCompleted, State: "COMPLETED", TransactionID: "TXN1"}, nil
}
func (stubGateway) RedemptionOrderStatus(ctx context.Context, merchantOrderID string) (*gatewaydomain.OrderStatusResponse, error) {
	return &gatewaydomain.OrderStatusResponse{State: "PENDING"}, nil
}

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&redemptiondomain.RedemptionOrder{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		HTTPAddr: ":0",
		Webhook:  config.WebhookConfig{Secret: "hook-secret"},
		Reconcile: config.ReconcileConfig{
			Concurrency:    2,
			DebounceWindow: 5 * time.Second,
		},
	}
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Now())
	gw := stubGateway{}
	subRepo := subscriptionrepository.Provide()
	redRepo := redemptionrepository.Provide()

	subSvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk, Cfg: cfg,
		Repo: subRepo, Gateway: gw,
	})
	redSvc := redemptionservice.NewService(redemptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: redRepo, SubRepo: subRepo, Gateway: gw,
	})
	hookSvc := webhookservice.NewService(webhookservice.Params{
		DB: db, Log: log, Cfg: cfg, SubRepo: subRepo, RedRepo: redRepo,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	return NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		Log:             log,
		SubscriptionSvc: subSvc,
		RedemptionSvc:   redSvc,
		WebhookSvc:      hookSvc,
	}), db
}

func doRequest(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestSetupAndListRoutes(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/subscriptions",
		`{"userId":"user-1","amount":5000,"frequency":"MONTHLY"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), "MSUB")
	require.Contains(t, w.Body.String(), "upi://mandate")

	w = doRequest(s, http.MethodGet, "/api/subscriptions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"pending"`)
}

func TestSetupValidationMapsTo400(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/subscriptions",
		`{"userId":"","amount":5000,"frequency":"MONTHLY"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "validation_error")
}

func TestReconcileDebounceMapsTo429(t *testing.T) {
	s, db := newTestServer(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&subscriptiondomain.Subscription{
		MerchantSubscriptionID: "MSUB1",
		UserID:                 "user-1",
		Status:                 subscriptiondomain.StatusPending,
		Amount:                 5000,
		Frequency:              subscriptiondomain.FrequencyMonthly,
		CreatedAt:              now,
		UpdatedAt:              now,
	}).Error)

	w := doRequest(s, http.MethodPost, "/api/subscriptions/reconcile", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPost, "/api/subscriptions/reconcile", "", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestCancelUnknownMapsTo404(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/subscriptions/MSUB404/cancel", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "not_found")
}

func TestWebhookAuthShapes(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/webhooks/gateway", `{}`, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)

	// authenticated but malformed: acknowledged so the gateway stops retrying
	w = doRequest(s, http.MethodPost, "/api/webhooks/gateway", `{"type":""}`,
		map[string]string{"Authorization": "Bearer hook-secret"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)
}

func TestWebhookAppliesEvent(t *testing.T) {
	s, db := newTestServer(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&subscriptiondomain.Subscription{
		MerchantSubscriptionID: "MSUB1",
		UserID:                 "user-1",
		Status:                 subscriptiondomain.StatusPending,
		Amount:                 5000,
		Frequency:              subscriptiondomain.FrequencyMonthly,
		CreatedAt:              now,
		UpdatedAt:              now,
	}).Error)

	w := doRequest(s, http.MethodPost, "/api/webhooks/gateway",
		`{"type":"SUBSCRIPTION_ACTIVATED","payload":{"merchantSubscriptionId":"MSUB1","state":"ACTIVE"}}`,
		map[string]string{"Authorization": "Bearer hook-secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var stored subscriptiondomain.Subscription
	require.NoError(t, db.First(&stored, "merchant_subscription_id = ?", "MSUB1").Error)
	require.Equal(t, subscriptiondomain.StatusActive, stored.Status)
}

func TestRedemptionRoutes(t *testing.T) {
	s, db := newTestServer(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&subscriptiondomain.Subscription{
		MerchantSubscriptionID: "MSUB1",
		UserID:                 "user-1",
		Status:                 subscriptiondomain.StatusActive,
		Amount:                 5000,
		Frequency:              subscriptiondomain.FrequencyMonthly,
		CreatedAt:              now,
		UpdatedAt:              now,
	}).Error)

	w := doRequest(s, http.MethodPost, "/api/redemptions/notify",
		`{"merchantSubscriptionId":"MSUB1","amount":500}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var order redemptiondomain.RedemptionOrder
	require.NoError(t, db.First(&order).Error)

	w = doRequest(s, http.MethodPost, "/api/redemptions/"+order.MerchantOrderID+"/execute",
		`{"merchantSubscriptionId":"MSUB1"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "COMPLETED")

	w = doRequest(s, http.MethodGet, "/api/redemptions/"+order.MerchantOrderID+"/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
