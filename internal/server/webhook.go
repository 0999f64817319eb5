package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/goldsip/goldsip/internal/webhook/domain"
	"go.uber.org/zap"
)

// GatewayWebhook ingests gateway callbacks. The gateway retries on
// non-2xx, so processing failures after authentication return 500 to
// request redelivery, while bad payloads are acknowledged to stop the
// retry loop.
func (s *Server) GatewayWebhook(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.webhookSvc.Ingest(c.Request.Context(), c.GetHeader("Authorization"), raw)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, webhookdomain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
	case errors.Is(err, webhookdomain.ErrInvalidPayload):
		s.log.Warn("discarding malformed webhook payload", zap.Int("bytes", len(raw)))
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "invalid payload"})
	default:
		s.log.Error("webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "processing failed"})
	}
}
