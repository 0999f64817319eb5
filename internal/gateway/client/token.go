package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goldsip/goldsip/internal/clock"
	"github.com/goldsip/goldsip/internal/config"
	"github.com/goldsip/goldsip/internal/gateway/domain"
	"go.uber.org/zap"
)

// refresh a little before the gateway-reported expiry to absorb clock skew
const tokenExpirySkew = 30 * time.Second

// TokenProvider caches the gateway oauth token and refreshes it lazily.
// The mutex is held across the refresh call, so concurrent reconciliation
// shares a single in-flight grant instead of storming the token endpoint.
type TokenProvider struct {
	cfg   config.GatewayConfig
	httpc *http.Client
	clock clock.Clock
	log   *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenProvider(cfg config.GatewayConfig, httpc *http.Client, clk clock.Clock, log *zap.Logger) *TokenProvider {
	return &TokenProvider{
		cfg:   cfg,
		httpc: httpc,
		clock: clk,
		log:   log.Named("gateway.token"),
	}
}

// GetValidToken returns the cached token, refreshing when absent or within
// the skew window of expiry.
func (p *TokenProvider) GetValidToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.clock.Now().Add(tokenExpirySkew).Before(p.expiresAt) {
		return p.token, nil
	}

	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		return "", domain.ErrMissingCredentials
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTokenRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", domain.ErrTokenRefreshFailed, resp.StatusCode)
	}

	var grant domain.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTokenRefreshFailed, err)
	}
	if grant.AccessToken == "" {
		return "", domain.ErrTokenRefreshFailed
	}

	p.token = grant.AccessToken
	p.expiresAt = time.Unix(grant.ExpiresAt, 0)
	p.log.Debug("gateway token refreshed", zap.Time("expires_at", p.expiresAt))

	return p.token, nil
}
