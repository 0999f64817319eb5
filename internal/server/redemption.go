package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redemptiondomain "github.com/goldsip/goldsip/internal/redemption/domain"
)

type notifyRedemptionRequest struct {
	MerchantSubscriptionID string            `json:"merchantSubscriptionId"`
	Amount                 int64             `json:"amount"`
	ExpireAt               string            `json:"expireAt"`
	Metadata               map[string]string `json:"metadata"`
	RetryStrategy          string            `json:"retryStrategy"`
	AutoDebit              bool              `json:"autoDebit"`
}

func (s *Server) NotifyRedemption(c *gin.Context) {
	var req notifyRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.MerchantSubscriptionID) == "" {
		AbortWithError(c, newValidationError("merchantSubscriptionId", "invalid_merchant_subscription_id", "invalid merchant subscription id"))
		return
	}

	var expireAt time.Time
	if req.ExpireAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpireAt)
		if err != nil {
			AbortWithError(c, newValidationError("expireAt", "invalid_expire_at", "invalid expiry"))
			return
		}
		expireAt = parsed
	}

	order, err := s.redemptionSvc.Notify(c.Request.Context(), redemptiondomain.NotifyRequest{
		MerchantSubscriptionID: strings.TrimSpace(req.MerchantSubscriptionID),
		Amount:                 req.Amount,
		ExpireAt:               expireAt,
		Metadata:               req.Metadata,
		RetryStrategy:          req.RetryStrategy,
		AutoDebit:              req.AutoDebit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": order})
}

type executeRedemptionRequest struct {
	MerchantSubscriptionID string `json:"merchantSubscriptionId"`
}

func (s *Server) ExecuteRedemption(c *gin.Context) {
	var req executeRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.MerchantSubscriptionID) == "" {
		AbortWithError(c, newValidationError("merchantSubscriptionId", "invalid_merchant_subscription_id", "invalid merchant subscription id"))
		return
	}

	order, err := s.redemptionSvc.Execute(c.Request.Context(), c.Param("orderId"), strings.TrimSpace(req.MerchantSubscriptionID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) RedemptionStatus(c *gin.Context) {
	order, err := s.redemptionSvc.CheckStatus(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}
