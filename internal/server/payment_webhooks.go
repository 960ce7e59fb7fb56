package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/nestbill/internal/audit/domain"
	"github.com/smallbiznis/nestbill/internal/auditcontext"
	obscontext "github.com/smallbiznis/nestbill/internal/observability/context"
	obstracing "github.com/smallbiznis/nestbill/internal/observability/tracing"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

func (s *Server) HandlePaymentWebhook(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				AbortWithError(c, newValidationError("body", "payload_too_large", "payload too large"))
				return
			}
			AbortWithError(c, invalidRequestError())
			return
		}

		c.Set(obstracing.ContextKeyWebhookProvider, provider)

		ctx := c.Request.Context()
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeProcessor), provider)
		ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeProcessor), provider)

		resp, err := s.webhookSvc.IngestWebhook(ctx, provider, payload, c.Request.Header)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		if resp.Ignored || resp.Result == nil {
			c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "ignored"}})
			return
		}

		c.Set("event_id", resp.Result.EventID)
		c.Set(obstracing.ContextKeyReconcileResult, string(resp.Result.Outcome))
		if resp.Result.Duplicate {
			s.log.Debug("duplicate webhook acknowledged",
				zap.String("provider", provider),
				zap.String("event_id", resp.Result.EventID),
			)
		}
		c.JSON(http.StatusOK, gin.H{"data": resp.Result})
	}
}
