package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/goldsip/goldsip/internal/clock"
	"github.com/goldsip/goldsip/internal/config"
	gatewaydomain "github.com/goldsip/goldsip/internal/gateway/domain"
	subscriptiondomain "github.com/goldsip/goldsip/internal/subscription/domain"
	"github.com/goldsip/goldsip/internal/subscription/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manual gateway mock. Unset funcs answer with benign defaults.
type mockGateway struct {
	createFn func(ctx context.Context, req gatewaydomain.SetupRequest) (*gatewaydomain.SetupResponse, error)
	statusFn func(ctx context.Context, id string) (*gatewaydomain.SubscriptionStatusResponse, error)
	cancelFn func(ctx context.Context, id string) error

	statusCalls atomic.Int32
	cancelCalls atomic.Int32
}

func (m *mockGateway) CreateSubscription(ctx context.Context, req gatewaydomain.SetupRequest) (*gatewaydomain.SetupResponse, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return &gatewaydomain.SetupResponse{OrderID: "GW" + req.MerchantOrderID, State: "PENDING"}, nil
}

func (m *mockGateway) SubscriptionStatus(ctx context.Context, id string) (*gatewaydomain.SubscriptionStatusResponse, error) {
	m.statusCalls.Add(1)
	if m.statusFn != nil {
		return m.statusFn(ctx, id)
	}
	return &gatewaydomain.SubscriptionStatusResponse{State: "ACTIVE"}, nil
}

func (m *mockGateway) CancelSubscription(ctx context.Context, id string) error {
	m.cancelCalls.Add(1)
	if m.cancelFn != nil {
		return m.cancelFn(ctx, id)
	}
	return nil
}

func (m *mockGateway) PauseSubscription(ctx context.Context, id string, window gatewaydomain.PauseWindow) error {
	return nil
}
func (m *mockGateway) UnpauseSubscription(ctx context.Context, id string) error { return nil }
func (m *mockGateway) RevokeSubscription(ctx context.Context, id string) error  { return nil }

func (m *mockGateway) NotifyRedemption(ctx context.Context, req gatewaydomain.NotifyRequest) (*gatewaydomain.NotifyResponse, error) {
	return nil, nil
}
func (m *mockGateway) ExecuteRedemption(ctx context.Context, merchantOrderID string) (*gatewaydomain.ExecuteResult, error) {
	return nil, nil
}
func (m *mockGateway) RedemptionOrderStatus(ctx context.Context, merchantOrderID string) (*gatewaydomain.OrderStatusResponse, error) {
	return nil, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&subscriptiondomain.Subscription{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, gw gatewaydomain.Client, clk clock.Clock, cfg config.ReconcileConfig) subscriptiondomain.Service {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Cfg:     config.Config{Reconcile: cfg},
		Repo:    repository.Provide(),
		Gateway: gw,
	})
}

func seedSubscription(t *testing.T, db *gorm.DB, id string, status subscriptiondomain.Status) {
	now := time.Now().UTC()
	err := db.Create(&subscriptiondomain.Subscription{
		MerchantSubscriptionID: id,
		GatewayOrderID:         "GW" + id,
		UserID:                 "user-1",
		Status:                 status,
		Amount:                 5000,
		Frequency:              subscriptiondomain.FrequencyMonthly,
		StartDate:              now,
		EndDate:                now.AddDate(1, 0, 0),
		CreatedAt:              now,
		UpdatedAt:              now,
	}).Error
	require.NoError(t, err)
}

func TestSetupPersistsPending(t *testing.T) {
	db := setupTestDB(t)
	gw := &mockGateway{
		createFn: func(ctx context.Context, req gatewaydomain.SetupRequest) (*gatewaydomain.SetupResponse, error) {
			return &gatewaydomain.SetupResponse{
				OrderID:   "OMS123",
				State:     "PENDING",
				IntentURL: "upi://mandate?pa=merchant",
			}, nil
		},
	}
	svc := newTestService(t, db, gw, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})

	resp, err := svc.Setup(context.Background(), subscriptiondomain.SetupRequest{
		UserID:    "user-1",
		Amount:    5000,
		Frequency: subscriptiondomain.FrequencyMonthly,
	})
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.StatusPending, resp.Subscription.Status)
	require.Equal(t, "OMS123", resp.Subscription.GatewayOrderID)
	require.Equal(t, "upi://mandate?pa=merchant", resp.IntentURL)
	require.Contains(t, resp.Subscription.MerchantSubscriptionID, "MSUB")

	var stored subscriptiondomain.Subscription
	require.NoError(t, db.First(&stored, "merchant_subscription_id = ?", resp.Subscription.MerchantSubscriptionID).Error)
	require.Equal(t, subscriptiondomain.StatusPending, stored.Status)
	require.Equal(t, int64(5000), stored.MaxAmount, "max amount defaults to the debit amount")
}

func TestSetupGatewayRejectionPersistsNothing(t *testing.T) {
	db := setupTestDB(t)
	gw := &mockGateway{
		createFn: func(ctx context.Context, req gatewaydomain.SetupRequest) (*gatewaydomain.SetupResponse, error) {
			return nil, &gatewaydomain.Error{Code: gatewaydomain.CodeBadRequest, Message: "bad mandate"}
		},
	}
	svc := newTestService(t, db, gw, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})

	_, err := svc.Setup(context.Background(), subscriptiondomain.SetupRequest{
		UserID:    "user-1",
		Amount:    5000,
		Frequency: subscriptiondomain.FrequencyMonthly,
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&subscriptiondomain.Subscription{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSetupValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, &mockGateway{}, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})
	ctx := context.Background()

	_, err := svc.Setup(ctx, subscriptiondomain.SetupRequest{Amount: 100, Frequency: subscriptiondomain.FrequencyDaily})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidUser)

	_, err = svc.Setup(ctx, subscriptiondomain.SetupRequest{UserID: "u", Amount: 0, Frequency: subscriptiondomain.FrequencyDaily})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidAmount)

	_, err = svc.Setup(ctx, subscriptiondomain.SetupRequest{UserID: "u", Amount: 100, Frequency: "SOMETIMES"})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidFrequency)
}

func TestReconcileOneIdempotent(t *testing.T) {
	db := setupTestDB(t)
	gw := &mockGateway{
		statusFn: func(ctx context.Context, id string) (*gatewaydomain.SubscriptionStatusResponse, error) {
			return &gatewaydomain.SubscriptionStatusResponse{State: "ACTIVE"}, nil
		},
	}
	svc := newTestService(t, db, gw, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})
	seedSubscription(t, db, "MSUB1", subscriptiondomain.StatusActive)

	var before subscriptiondomain.Subscription
	require.NoError(t, db.First(&before, "merchant_subscription_id = ?", "MSUB1").Error)

	status, err := svc.ReconcileOne(context.Background(), "MSUB1")
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.StatusActive, status)

	var after subscriptiondomain.Subscription
	require.NoError(t, db.First(&after, "merchant_subscription_id = ?", "MSUB1").Error)
	require.Equal(t, before.UpdatedAt, after.UpdatedAt, "unchanged gateway state leaves the row untouched")
}

func TestReconcileOneAppliesTransition(t *testing.T) {
	db := setupTestDB(t)
	gw := &mockGateway{
		statusFn: func(ctx context.Context, id string) (*gatewaydomain.SubscriptionStatusResponse, error) {
			return &gatewaydomain.SubscriptionStatusResponse{State: "PAUSED"}, nil
		},
	}
	svc := newTestService(t, db, gw, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})
	seedSubscription(t, db, "MSUB1", subscriptiondomain.StatusActive)

	status, err := svc.ReconcileOne(context.Background(), "MSUB1")
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.StatusPaused, status)

	var stored subscriptiondomain.Subscription
	require.NoError(t, db.First(&stored, "merchant_subscription_id = ?", "MSUB1").Error)
	require.Equal(t, subscriptiondomain.StatusPaused, stored.Status)
}

func TestReconcileOneUnknownStateLandsInPending(t *testing.T) {
	db := setupTestDB(t)
	gw := &mockGateway{
		statusFn: func(ctx context.Context, id string) (*gatewaydomain.SubscriptionStatusResponse, error) {
			return &gatewaydomain.SubscriptionStatusResponse{State: "SOME_NEW_STATE"}, nil
		},
	}
	svc := newTestService(t, db, gw, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})
	seedSubscription(t, db, "MSUB1", subscriptiondomain.StatusPending)

	status, err := svc.ReconcileOne(context.Background(), "MSUB1")
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.StatusUnknown, status)
	require.Equal(t, subscriptiondomain.BucketPending, status.Bucket())
}

func TestReconcileOneTerminalGuard(t *testing.T) {
	db := setupTestDB(t)
	gw := &mockGateway{
		statusFn: func(ctx context.Context, id string) (*gatewaydomain.SubscriptionStatusResponse, error) {
			return &gatewaydomain.SubscriptionStatusResponse{State: "ACTIVE"}, nil
		},
	}
	svc := newTestService(t, db, gw, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})
	seedSubscription(t, db, "MSUB1", subscriptiondomain.StatusCancelled)

	status, err := svc.ReconcileOne(context.Background(), "MSUB1")
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.StatusCancelled, status)

	var stored subscriptiondomain.Subscription
	require.NoError(t, db.First(&stored, "merchant_subscription_id = ?", "MSUB1").Error)
	require.Equal(t, subscriptiondomain.StatusCancelled, stored.Status)
}

func TestReconcileOneNotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, &mockGateway{}, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})

	_, err := svc.ReconcileOne(context.Background(), "MSUB404")
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestReconcileBatchBoundedConcurrency(t *testing.T) {
	db := setupTestDB(t)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	gw := &mockGateway{
		statusFn: func(ctx context.Context, id string) (*gatewaydomain.SubscriptionStatusResponse, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return &gatewaydomain.SubscriptionStatusResponse{State: "ACTIVE"}, nil
		},
	}
	svc := newTestService(t, db, gw, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})

	var subs []subscriptiondomain.Subscription
	for _, id := range []string{"MSUB1", "MSUB2", "MSUB3", "MSUB4", "MSUB5", "MSUB6", "MSUB7", "MSUB8"} {
		seedSubscription(t, db, id, subscriptiondomain.StatusPending)
		subs = append(subs, subscriptiondomain.Subscription{MerchantSubscriptionID: id})
	}

	result, err := svc.ReconcileBatch(context.Background(), subs)
	require.NoError(t, err)
	require.Equal(t, 8, result.Total)
	require.Equal(t, 8, result.Updated)
	require.LessOrEqual(t, maxInFlight, 2, "no more than the configured number of status calls in flight")
	require.Equal(t, int32(8), gw.statusCalls.Load())
}

func TestReconcileBatchDebounce(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Now())
	gw := &mockGateway{}
	svc := newTestService(t, db, gw, clk, config.ReconcileConfig{Concurrency: 2, DebounceWindow: 5 * time.Second})

	seedSubscription(t, db, "MSUB1", subscriptiondomain.StatusPending)
	subs := []subscriptiondomain.Subscription{{MerchantSubscriptionID: "MSUB1"}}

	_, err := svc.ReconcileBatch(context.Background(), subs)
	require.NoError(t, err)
	require.Equal(t, int32(1), gw.statusCalls.Load())

	_, err = svc.ReconcileBatch(context.Background(), subs)
	require.ErrorIs(t, err, subscriptiondomain.ErrReconcileDebounced)
	require.Equal(t, int32(1), gw.statusCalls.Load(), "debounced call never reaches the gateway")

	clk.Advance(5 * time.Second)
	_, err = svc.ReconcileBatch(context.Background(), subs)
	require.NoError(t, err)
	require.Equal(t, int32(2), gw.statusCalls.Load())
}

func TestReconcileAllSkipsTerminal(t *testing.T) {
	db := setupTestDB(t)
	gw := &mockGateway{}
	svc := newTestService(t, db, gw, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})

	seedSubscription(t, db, "MSUB1", subscriptiondomain.StatusPending)
	seedSubscription(t, db, "MSUB2", subscriptiondomain.StatusCancelled)
	seedSubscription(t, db, "MSUB3", subscriptiondomain.StatusActive)

	result, err := svc.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Total)
	require.Equal(t, int32(2), gw.statusCalls.Load())
}

func TestCancel(t *testing.T) {
	db := setupTestDB(t)
	gw := &mockGateway{}
	svc := newTestService(t, db, gw, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})
	seedSubscription(t, db, "MSUB1", subscriptiondomain.StatusActive)

	require.NoError(t, svc.Cancel(context.Background(), "MSUB1"))
	require.Equal(t, int32(1), gw.cancelCalls.Load())

	var stored subscriptiondomain.Subscription
	require.NoError(t, db.First(&stored, "merchant_subscription_id = ?", "MSUB1").Error)
	require.Equal(t, subscriptiondomain.StatusCancelled, stored.Status)

	// idempotent: a second cancel is a no-op without a gateway call
	require.NoError(t, svc.Cancel(context.Background(), "MSUB1"))
	require.Equal(t, int32(1), gw.cancelCalls.Load())
}

func TestCancelOtherTerminal(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, &mockGateway{}, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})
	seedSubscription(t, db, "MSUB1", subscriptiondomain.StatusRevoked)

	err := svc.Cancel(context.Background(), "MSUB1")
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionTerminal)
}

func TestPause(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, &mockGateway{}, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})
	seedSubscription(t, db, "MSUB1", subscriptiondomain.StatusActive)

	start := time.Now().Add(time.Hour)
	err := svc.Pause(context.Background(), subscriptiondomain.PauseRequest{
		MerchantSubscriptionID: "MSUB1",
		PauseStart:             start,
		PauseEnd:               start.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	var stored subscriptiondomain.Subscription
	require.NoError(t, db.First(&stored, "merchant_subscription_id = ?", "MSUB1").Error)
	require.Equal(t, subscriptiondomain.StatusPauseInProgress, stored.Status)

	// pausing while a pause is settling is a no-op
	err = svc.Pause(context.Background(), subscriptiondomain.PauseRequest{
		MerchantSubscriptionID: "MSUB1",
		PauseStart:             start,
		PauseEnd:               start.Add(24 * time.Hour),
	})
	require.NoError(t, err)
}

func TestPauseInvalidWindow(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, &mockGateway{}, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})

	now := time.Now()
	err := svc.Pause(context.Background(), subscriptiondomain.PauseRequest{
		MerchantSubscriptionID: "MSUB1",
		PauseStart:             now.Add(time.Hour),
		PauseEnd:               now,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidPauseWindow)
}

func TestRevoke(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, &mockGateway{}, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})
	seedSubscription(t, db, "MSUB1", subscriptiondomain.StatusActive)

	require.NoError(t, svc.Revoke(context.Background(), "MSUB1"))

	var stored subscriptiondomain.Subscription
	require.NoError(t, db.First(&stored, "merchant_subscription_id = ?", "MSUB1").Error)
	require.Equal(t, subscriptiondomain.StatusRevokeInProgress, stored.Status)
}

func TestClassify(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, &mockGateway{}, clock.NewFakeClock(time.Now()), config.ReconcileConfig{Concurrency: 2})

	out := svc.Classify([]subscriptiondomain.Subscription{
		{MerchantSubscriptionID: "A", Status: subscriptiondomain.StatusActive},
		{MerchantSubscriptionID: "B", Status: subscriptiondomain.StatusPending},
		{MerchantSubscriptionID: "C", Status: subscriptiondomain.StatusUnknown},
		{MerchantSubscriptionID: "D", Status: subscriptiondomain.StatusExpired},
	})
	require.Len(t, out.Active, 1)
	require.Len(t, out.Pending, 2, "unknown classifies as pending")
	require.Len(t, out.Terminal, 1)
}
