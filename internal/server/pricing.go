package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
)

func (s *Server) ListPlans(c *gin.Context) {
	resp, err := s.catalogSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type quoteRequest struct {
	PlanCode     string `json:"plan_code"`
	Amount       int64  `json:"amount"`
	Jurisdiction string `json:"jurisdiction"`
}

type quoteResponse struct {
	taxdomain.Breakdown
	Currency string `json:"currency,omitempty"`
}

// QuotePricing previews the tax-inclusive total for a plan or a raw amount.
func (s *Server) QuotePricing(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	amount := req.Amount
	currency := ""
	if code := strings.TrimSpace(req.PlanCode); code != "" {
		plan, err := s.catalogSvc.Get(c.Request.Context(), code)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		amount = plan.Price
		currency = plan.Currency
	}

	resp, err := s.taxSvc.Quote(c.Request.Context(), taxdomain.QuoteRequest{
		Amount:       amount,
		Jurisdiction: strings.TrimSpace(req.Jurisdiction),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quoteResponse{Breakdown: resp, Currency: currency}})
}
