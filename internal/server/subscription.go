package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/goldsip/goldsip/internal/subscription/domain"
)

type setupSubscriptionRequest struct {
	UserID           string `json:"userId"`
	Amount           int64  `json:"amount"`
	Frequency        string `json:"frequency"`
	AmountType       string `json:"amountType"`
	MaxAmount        int64  `json:"maxAmount"`
	AuthWorkflowType string `json:"authWorkflowType"`
	EndDate          string `json:"endDate"`
}

func (s *Server) SetupSubscription(c *gin.Context) {
	var req setupSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var endDate time.Time
	if req.EndDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			AbortWithError(c, newValidationError("endDate", "invalid_end_date", "invalid end date"))
			return
		}
		endDate = parsed
	}

	resp, err := s.subscriptionSvc.Setup(c.Request.Context(), subscriptiondomain.SetupRequest{
		UserID:           strings.TrimSpace(req.UserID),
		Amount:           req.Amount,
		Frequency:        subscriptiondomain.Frequency(strings.ToUpper(req.Frequency)),
		AmountType:       req.AmountType,
		MaxAmount:        req.MaxAmount,
		AuthWorkflowType: req.AuthWorkflowType,
		EndDate:          endDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	classification, err := s.subscriptionSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": classification})
}

func (s *Server) ReconcileSubscriptions(c *gin.Context) {
	result, err := s.subscriptionSvc.ReconcileAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ReconcileSubscription(c *gin.Context) {
	id := c.Param("id")

	status, err := s.subscriptionSvc.ReconcileOne(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"merchant_subscription_id": id,
		"status":                   status,
	}})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	if err := s.subscriptionSvc.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type pauseSubscriptionRequest struct {
	PauseStart string `json:"pauseStart"`
	PauseEnd   string `json:"pauseEnd"`
}

func (s *Server) PauseSubscription(c *gin.Context) {
	var req pauseSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	start, err := time.Parse(time.RFC3339, req.PauseStart)
	if err != nil {
		AbortWithError(c, newValidationError("pauseStart", "invalid_pause_start", "invalid pause start"))
		return
	}
	end, err := time.Parse(time.RFC3339, req.PauseEnd)
	if err != nil {
		AbortWithError(c, newValidationError("pauseEnd", "invalid_pause_end", "invalid pause end"))
		return
	}

	if err := s.subscriptionSvc.Pause(c.Request.Context(), subscriptiondomain.PauseRequest{
		MerchantSubscriptionID: c.Param("id"),
		PauseStart:             start,
		PauseEnd:               end,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) UnpauseSubscription(c *gin.Context) {
	if err := s.subscriptionSvc.Unpause(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) RevokeSubscription(c *gin.Context) {
	if err := s.subscriptionSvc.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
