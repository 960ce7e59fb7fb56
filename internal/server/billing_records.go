package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
)

func (s *Server) GetReceipt(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	receipt, err := s.receiptSvc.Render(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !actor.Owns(receipt.CustomerRef) {
		AbortWithError(c, invoicedomain.ErrBillingRecordNotFound)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipt.Filename))
	c.Data(http.StatusOK, "application/pdf", receipt.Content)
}
