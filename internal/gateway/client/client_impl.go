// Package client implements the payment gateway HTTP client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/goldsip/goldsip/internal/config"
	"github.com/goldsip/goldsip/internal/gateway/domain"
	"github.com/goldsip/goldsip/internal/observability/metrics"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Tokens  domain.TokenProvider
	Metrics *metrics.Metrics `optional:"true"`
	HTTP    *http.Client
}

type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  domain.TokenProvider
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewClient(p Params) domain.Client {
	return &Client{
		baseURL: p.Cfg.Gateway.BaseURL,
		httpc:   p.HTTP,
		tokens:  p.Tokens,
		log:     p.Log.Named("gateway.client"),
		metrics: p.Metrics,
	}
}

func (c *Client) CreateSubscription(ctx context.Context, req domain.SetupRequest) (*domain.SetupResponse, error) {
	var out domain.SetupResponse
	if err := c.do(ctx, "subscription_setup", http.MethodPost, "/subscriptions/setup", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubscriptionStatus(ctx context.Context, merchantSubscriptionID string) (*domain.SubscriptionStatusResponse, error) {
	path := fmt.Sprintf("/subscriptions/%s/status?details=true", url.PathEscape(merchantSubscriptionID))
	var out domain.SubscriptionStatusResponse
	if err := c.do(ctx, "subscription_status", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelSubscription(ctx context.Context, merchantSubscriptionID string) error {
	path := fmt.Sprintf("/subscriptions/%s/cancel", url.PathEscape(merchantSubscriptionID))
	return c.do(ctx, "subscription_cancel", http.MethodPost, path, nil, nil)
}

func (c *Client) PauseSubscription(ctx context.Context, merchantSubscriptionID string, window domain.PauseWindow) error {
	path := fmt.Sprintf("/subscriptions/%s/pause", url.PathEscape(merchantSubscriptionID))
	body := map[string]int64{
		"pauseStartDate": window.Start.UnixMilli(),
		"pauseEndDate":   window.End.UnixMilli(),
	}
	return c.do(ctx, "subscription_pause", http.MethodPost, path, body, nil)
}

func (c *Client) UnpauseSubscription(ctx context.Context, merchantSubscriptionID string) error {
	path := fmt.Sprintf("/subscriptions/%s/unpause", url.PathEscape(merchantSubscriptionID))
	return c.do(ctx, "subscription_unpause", http.MethodPost, path, nil, nil)
}

func (c *Client) RevokeSubscription(ctx context.Context, merchantSubscriptionID string) error {
	path := fmt.Sprintf("/subscriptions/%s/revoke", url.PathEscape(merchantSubscriptionID))
	return c.do(ctx, "subscription_revoke", http.MethodPost, path, nil, nil)
}

func (c *Client) NotifyRedemption(ctx context.Context, req domain.NotifyRequest) (*domain.NotifyResponse, error) {
	var out domain.NotifyResponse
	if err := c.do(ctx, "redemption_notify", http.MethodPost, "/subscriptions/notify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteRedemption triggers the charge and classifies the response into an
// explicit outcome. Timeouts and order-not-found answers are Ambiguous: the
// gateway may have settled the order concurrently, so the caller resolves
// via RedemptionOrderStatus instead of retrying the execute.
func (c *Client) ExecuteRedemption(ctx context.Context, merchantOrderID string) (*domain.ExecuteResult, error) {
	body := map[string]string{"merchantOrderId": merchantOrderID}

	var out struct {
		State         string `json:"state"`
		TransactionID string `json:"transactionId"`
	}
	err := c.do(ctx, "redemption_execute", http.MethodPost, "/subscriptions/redeem", body, &out)
	if err != nil {
		if isTimeout(err) || domain.IsOrderNotFound(err) {
			return &domain.ExecuteResult{Outcome: domain.OutcomeAmbiguous}, nil
		}
		var ge *domain.Error
		if errors.As(err, &ge) {
			return &domain.ExecuteResult{Outcome: domain.OutcomeFailed, Err: ge}, nil
		}
		return nil, err
	}

	state := strings.ToUpper(strings.TrimSpace(out.State))
	switch state {
	case "":
		return &domain.ExecuteResult{Outcome: domain.OutcomeAmbiguous}, nil
	case "FAILED":
		return &domain.ExecuteResult{Outcome: domain.OutcomeFailed, State: state}, nil
	default:
		return &domain.ExecuteResult{
			Outcome:       domain.OutcomeCompleted,
			State:         state,
			TransactionID: out.TransactionID,
		}, nil
	}
}

func (c *Client) RedemptionOrderStatus(ctx context.Context, merchantOrderID string) (*domain.OrderStatusResponse, error) {
	path := fmt.Sprintf("/subscriptions/order/%s/status?details=true", url.PathEscape(merchantOrderID))
	var out domain.OrderStatusResponse
	if err := c.do(ctx, "redemption_status", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out any) error {
	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		c.observe(endpoint, "token_error")
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.observe(endpoint, "transport_error")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		c.observe(endpoint, "ok")
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(endpoint, "transport_error")
		return err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.observe(endpoint, "ok")
		if out == nil || len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, out)
	}

	c.observe(endpoint, "gateway_error")
	return c.decodeError(resp.StatusCode, raw)
}

func (c *Client) decodeError(status int, raw []byte) error {
	ge := &domain.Error{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, ge)
	}
	if ge.Code == "" {
		switch status {
		case http.StatusNotFound:
			ge.Code = domain.CodeOrderNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			ge.Code = domain.CodeUnauthorized
		case http.StatusBadRequest:
			ge.Code = domain.CodeBadRequest
		default:
			ge.Code = domain.CodeInternal
		}
	}
	if ge.Message == "" {
		ge.Message = fmt.Sprintf("gateway returned status %d", status)
	}
	return ge
}

func (c *Client) observe(endpoint, outcome string) {
	c.metrics.ObserveGateway(endpoint, outcome)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
